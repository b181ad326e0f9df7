package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/introspectai/learnloop/pkg/core"
)

// consoleApprover asks the human at the terminal about each pending tool
// call. Reads happen on their own goroutine so a Ctrl-C cancels the wait
// immediately.
type consoleApprover struct {
	in  *bufio.Reader
	out io.Writer
}

func newConsoleApprover(in io.Reader, out io.Writer) *consoleApprover {
	return &consoleApprover{in: bufio.NewReader(in), out: out}
}

func (a *consoleApprover) PresentForApproval(ctx context.Context, call *core.ToolCall) (core.Decision, error) {
	args, err := json.MarshalIndent(call.Args, "", "  ")
	if err != nil {
		args = []byte(fmt.Sprintf("%v", call.Args))
	}
	fmt.Fprintf(a.out, "\nproposed tool call: %s\n%s\n[a]pprove / [r]eject / [c]ancel task? ", call.Name, args)

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		ch <- answer{text: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return core.Cancel, ctx.Err()
	case ans := <-ch:
		if ans.err != nil {
			return core.Cancel, ans.err
		}
		switch strings.ToLower(strings.TrimSpace(ans.text)) {
		case "a", "approve", "y", "yes":
			return core.Approve, nil
		case "r", "reject", "n", "no":
			return core.Reject, nil
		default:
			return core.Cancel, nil
		}
	}
}
