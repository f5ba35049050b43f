package executor

// argvBuilder assembles the argv view passed to execve. It exists as its
// own small type (rather than an inline slice literal) so that every exit
// path out of executeChild - including the path where execve itself
// returns with an error - runs through a single Release, the Go analogue
// of the owned raw pointer array spec.md §9 describes.
type argvBuilder struct {
	argv []string
}

func newArgvBuilder(programName string, args []string) *argvBuilder {
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, programName)
	argv = append(argv, args...)
	return &argvBuilder{argv: argv}
}

func (b *argvBuilder) Argv() []string {
	return b.argv
}

// Release drops the builder's reference to its backing array. It is safe
// to call more than once.
func (b *argvBuilder) Release() {
	b.argv = nil
}
