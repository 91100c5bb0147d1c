package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// command is one REPL verb. run returns false to leave the loop.
type command struct {
	usage string
	help  string
	run   func(ctx context.Context, s *shell, args []string) bool
}

type shell struct {
	session *mcp.ClientSession
	out     io.Writer
}

var commands = map[string]command{
	"/tools": {
		help: "list the server's tools",
		run: func(ctx context.Context, s *shell, _ []string) bool {
			s.tools(ctx)
			return true
		},
	},
	"/state": {
		usage: "[refresh]",
		help:  "show channel, profile, release and devices",
		run: func(ctx context.Context, s *shell, args []string) bool {
			s.call(ctx, "get_dashboard_state", refreshArgs(args))
			return true
		},
	},
	"/health": {
		usage: "[refresh]",
		help:  "grade the dashboard OK/WARN/CRIT",
		run: func(ctx context.Context, s *shell, args []string) bool {
			s.call(ctx, "get_health", refreshArgs(args))
			return true
		},
	},
	"/activity": {
		usage: "[scope] [limit]",
		help:  "entries logged by the running session",
		run: func(ctx context.Context, s *shell, args []string) bool {
			s.activity(ctx, args, false)
			return true
		},
	},
	"/archive": {
		usage: "[scope] [limit]",
		help:  "entries from the persistent journal",
		run: func(ctx context.Context, s *shell, args []string) bool {
			s.activity(ctx, args, true)
			return true
		},
	},
	"/exit": {
		help: "quit",
		run:  func(context.Context, *shell, []string) bool { return false },
	},
}

var order = []string{"/tools", "/state", "/health", "/activity", "/archive", "/exit"}

func main() {
	flag.Parse()
	argv := flag.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mcp-client <server-command> [args...]")
		fmt.Fprintln(os.Stderr, "  e.g. mcp-client ./msmanager mcp")
		os.Exit(2)
	}

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "msmanager-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: exec.Command(argv[0], argv[1:]...)}, nil)
	if err != nil {
		log.Fatalf("connect %s: %v", argv[0], err)
	}
	defer session.Close()

	s := &shell{session: session, out: os.Stdout}
	s.usage()
	s.loop(ctx, os.Stdin)
}

func (s *shell) usage() {
	fmt.Fprintln(s.out, "connected; commands:")
	for _, name := range order {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-26s %s\n", strings.TrimSpace(name+" "+c.usage), c.help)
	}
}

func (s *shell) loop(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for fmt.Fprint(s.out, "msm> "); sc.Scan(); fmt.Fprint(s.out, "msm> ") {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		c, ok := commands[fields[0]]
		if !ok {
			fmt.Fprintf(s.out, "unknown command %q\n", fields[0])
			continue
		}
		if !c.run(ctx, s, fields[1:]) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Printf("read input: %v", err)
	}
}

func (s *shell) tools(ctx context.Context) {
	for tool, err := range s.session.Tools(ctx, nil) {
		if err != nil {
			log.Printf("list tools: %v", err)
			return
		}
		fmt.Fprintf(s.out, "  %-22s %s\n", tool.Name, tool.Description)
	}
}

func (s *shell) activity(ctx context.Context, args []string, archived bool) {
	params := map[string]any{"archived": archived}
	if len(args) > 0 {
		params["scope"] = args[0]
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			fmt.Fprintf(s.out, "limit must be a positive number, got %q\n", args[1])
			return
		}
		params["limit"] = n
	}
	s.call(ctx, "get_activity", params)
}

func refreshArgs(args []string) map[string]any {
	return map[string]any{"refresh": len(args) > 0 && args[0] == "refresh"}
}

func (s *shell) call(ctx context.Context, tool string, args map[string]any) {
	res, err := s.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		log.Printf("%s: %v", tool, err)
		return
	}
	if res.IsError {
		fmt.Fprint(s.out, "error: ")
	}
	if res.StructuredContent != nil {
		if b, err := json.MarshalIndent(res.StructuredContent, "", "  "); err == nil {
			fmt.Fprintln(s.out, string(b))
			return
		}
	}
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			fmt.Fprintln(s.out, t.Text)
			continue
		}
		fmt.Fprintf(s.out, "%+v\n", c)
	}
}
