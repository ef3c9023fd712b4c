// Command demotool runs a small demonstration tool server over TCP. It is
// the counterpart used in local testing of the runtime: agentd connects to
// it, plans tool steps against it, and exercises elicitation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/agentd-ai/agentd/internal/logging"
	"github.com/agentd-ai/agentd/internal/mcp"
	"github.com/agentd-ai/agentd/pkg/toolserver"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "listen address")
	flag.Parse()

	logging.Init(logging.DefaultConfig())

	srv := toolserver.New("demotool", "1.0.0")
	registerSum(srv)
	registerGetTime(srv)
	registerGreet(srv)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := srv.Serve(ln); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func registerSum(srv *toolserver.Server) {
	srv.Register(mcp.Tool{
		Name:        "sum",
		Description: "Calculates the sum of an array of numbers",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"numbers": {"type": "array", "items": {"type": "number"}, "description": "Numbers to sum"}
			},
			"required": ["numbers"]
		}`),
	}, func(ctx context.Context, call *toolserver.Call) (string, error) {
		var args struct {
			Numbers []float64 `json:"numbers"`
		}
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return "", fmt.Errorf("invalid numbers: %w", err)
		}
		if len(args.Numbers) == 0 {
			return "", errors.New("numbers argument is required")
		}
		var sum float64
		for _, n := range args.Numbers {
			sum += n
		}
		return strconv.FormatFloat(sum, 'f', -1, 64), nil
	})
}

func registerGetTime(srv *toolserver.Server) {
	srv.Register(mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current server time",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	}, func(ctx context.Context, call *toolserver.Call) (string, error) {
		return time.Now().Format(time.RFC3339), nil
	})
}

// registerGreet demonstrates elicitation: when the caller does not supply a
// name, the server asks the user for one mid-call.
func registerGreet(srv *toolserver.Server) {
	nameSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "The name to greet"}
		},
		"required": ["name"]
	}`)

	srv.Register(mcp.Tool{
		Name:        "greet",
		Description: "Greets a person by name, asking for the name if missing",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "The name to greet"}
			}
		}`),
	}, func(ctx context.Context, call *toolserver.Call) (string, error) {
		var args struct {
			Name *string `json:"name"`
		}
		json.Unmarshal(call.Args, &args)

		name := ""
		if args.Name != nil {
			name = *args.Name
		}
		if name == "" {
			result, err := call.Elicit(ctx, "Who should I greet?", nameSchema)
			if err != nil {
				return "", err
			}
			if result.Action != mcp.ElicitAccept {
				return "", fmt.Errorf("user did not provide a name (%s)", result.Action)
			}
			var reply struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(result.Content, &reply); err != nil || reply.Name == "" {
				return "", errors.New("no usable name in the reply")
			}
			name = reply.Name
		}
		return "Hello, " + name + "!", nil
	})
}
