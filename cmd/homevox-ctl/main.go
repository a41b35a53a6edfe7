package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"homevox/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: homevox-ctl [--socket path] <listen|stop|reset|say|mute|unmute|status> [text...]")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{
		Cmd:  args[0],
		Text: strings.Join(args[1:], " "),
	}

	var status json.RawMessage
	if err := ipc.SendCommand(*socket, msg, &status); err != nil {
		fmt.Fprintln(os.Stderr, "homevox-ctl:", err)
		os.Exit(1)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, status, "", "  "); err != nil {
		fmt.Println(string(status))
		return
	}
	fmt.Println(out.String())
}
