package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sio2box/jail/pkg/executor"
)

// OutputBuilder is the minimal "external collaborator" spec.md §1 and §4.10
// place out of scope for the engine itself: something that turns an
// executor.Outcome into whatever wire format the judge actually wants.
// boxjail ships the simplest useful one, a JSON document.
type OutputBuilder interface {
	Build(outcome executor.Outcome) ([]byte, error)
}

type jsonOutputBuilder struct{}

type jsonVerdict struct {
	ExitStatus int `json:"exit_status"`
	KillSignal int `json:"kill_signal,omitempty"`
}

func (jsonOutputBuilder) Build(outcome executor.Outcome) ([]byte, error) {
	v := jsonVerdict{ExitStatus: outcome.ExitStatus, KillSignal: outcome.KillSignal}
	return json.MarshalIndent(v, "", "  ")
}

func writeOutput(builder OutputBuilder, outcome executor.Outcome, path string) error {
	data, err := builder.Build(outcome)
	if err != nil {
		return fmt.Errorf("boxjail: building output: %w", err)
	}
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
