package stream

import (
	"fmt"
	"io"
	"log"
	"os"

	"sysguard/pkg/guard"
)

// Target is a process-global output stream that a Capture can replace.
type Target interface {
	// Name identifies the stream in logs and failure messages.
	Name() string

	redirect(sinkFor func(original io.Writer) io.Writer) (redirection, error)
}

// redirection is one installed replacement of a Target.
type redirection interface {
	// sync delivers every byte already written to the replacement.
	sync()
	// restore reinstates the original stream and delivers the remainder.
	restore() error
}

// StdoutFile is os.Stdout.
var StdoutFile Target = fileTarget{res: guard.Resource[*os.File]{
	Name: "stdout",
	Get:  func() *os.File { return os.Stdout },
	Set:  func(f *os.File) error { os.Stdout = f; return nil },
}}

// StderrFile is os.Stderr.
var StderrFile Target = fileTarget{res: guard.Resource[*os.File]{
	Name: "stderr",
	Get:  func() *os.File { return os.Stderr },
	Set:  func(f *os.File) error { os.Stderr = f; return nil },
}}

// StdLog is the output of the log package's standard logger, which keeps
// writing to the stderr it saw at init even after os.Stderr is replaced.
var StdLog Target = writerTarget{res: guard.Resource[io.Writer]{
	Name: "log",
	Get:  log.Writer,
	Set:  func(w io.Writer) error { log.SetOutput(w); return nil },
}}

// WriterVar is a package-level io.Writer seam such as
//
//	var stdout io.Writer = os.Stdout
func WriterVar(name string, ptr *io.Writer) Target {
	return writerTarget{res: guard.Var(name, ptr)}
}

// FileVar is a package-level *os.File seam.
func FileVar(name string, ptr **os.File) Target {
	return fileTarget{res: guard.Var(name, ptr)}
}

// fileTarget replaces an *os.File with the write end of a pipe.
type fileTarget struct {
	res guard.Resource[*os.File]
}

func (t fileTarget) Name() string { return t.res.Name }

func (t fileTarget) redirect(sinkFor func(io.Writer) io.Writer) (redirection, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe for %s: %w", t.res.Name, err)
	}

	original := t.res.Get()
	var passthrough io.Writer
	if original != nil {
		passthrough = original
	}
	p := newPump(r, sinkFor(passthrough))

	g, err := guard.Install(t.res, w)
	if err != nil {
		_ = w.Close()
		_ = r.Close()
		return nil, err
	}
	go p.run()

	return &pipeRedirection{guard: g, r: r, w: w, pump: p}, nil
}

type pipeRedirection struct {
	guard *guard.Guard[*os.File]
	r, w  *os.File
	pump  *pump
}

func (d *pipeRedirection) sync() {
	d.pump.sync()
}

func (d *pipeRedirection) restore() error {
	re := d.guard.Restore()
	// Closing the write end lets the pump read to EOF.
	_ = d.w.Close()
	<-d.pump.done
	_ = d.r.Close()
	if re != nil {
		return re
	}
	return nil
}

// writerTarget installs the sink itself.
type writerTarget struct {
	res guard.Resource[io.Writer]
}

func (t writerTarget) Name() string { return t.res.Name }

func (t writerTarget) redirect(sinkFor func(io.Writer) io.Writer) (redirection, error) {
	sink := sinkFor(t.res.Get())
	g, err := guard.Install(t.res, sink)
	if err != nil {
		return nil, err
	}
	return &directRedirection{guard: g}, nil
}

type directRedirection struct {
	guard *guard.Guard[io.Writer]
}

func (d *directRedirection) sync() {}

func (d *directRedirection) restore() error {
	if re := d.guard.Restore(); re != nil {
		return re
	}
	return nil
}
