// Command ringctl is the operator CLI over a running ringd node's
// admin HTTP surface, implementing the verb list from spec.md §6 as
// flag-parsed subcommands — no cobra, in the style of this repository's
// other cmd/*/main.go entry points.
//
// Exit codes: 0 success, 1 usage, 3 connection/draining errors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func main() {
	host := flag.String("host", "127.0.0.1", "ringd admin host")
	port := flag.Int("port", 8080, "ringd admin port")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	c := &client{base: fmt.Sprintf("http://%s:%d", *host, *port), httpClient: &http.Client{Timeout: *timeout}}

	verb := args[0]
	rest := args[1:]

	cmd, ok := commands[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "ringctl: unknown verb %q\n", verb)
		usage()
		os.Exit(1)
	}

	if err := cmd(c, rest); err != nil {
		fmt.Fprintf(os.Stderr, "ringctl: %v\n", err)
		if _, ok := err.(*usageError); ok {
			os.Exit(1)
		}
		os.Exit(3)
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ringctl [-host H] [-port P] <verb> [args...]")
	fmt.Fprintln(os.Stderr, "verbs: ring info cfstats tpstats drain decommission move loadbalance")
	fmt.Fprintln(os.Stderr, "       removetoken flush repair cleanup compact setcachecapacity")
	fmt.Fprintln(os.Stderr, "       getcompactionthreshold setcompactionthreshold streams")
	fmt.Fprintln(os.Stderr, "       cancelstreamout setstreamthroughput cfhistograms snapshot")
	fmt.Fprintln(os.Stderr, "       clearsnapshot gossipinfo gossipstop gossipstart gossippurge")
	fmt.Fprintln(os.Stderr, "       resumebootstrap")
}

// client wraps the node's admin HTTP surface (internal/server's
// /admin/* routes), in the shape api-gateway/internal/grpc's client
// wraps the coordinator's gRPC surface.
type client struct {
	base       string
	httpClient *http.Client
}

type connError struct {
	err error
}

func (e *connError) Error() string { return e.err.Error() }

func (c *client) get(path string, query url.Values) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.httpClient.Get(u)
	if err != nil {
		return nil, &connError{err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &connError{err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &connError{err: fmt.Errorf("%s: HTTP %d: %s", path, resp.StatusCode, body)}
	}
	return body, nil
}

func (c *client) printJSON(path string, query url.Values) error {
	body, err := c.get(path, query)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *client) ack(path string, query url.Values) error {
	body, err := c.get(path, query)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

type commandFunc func(c *client, args []string) error

var commands = map[string]commandFunc{
	"ring":     func(c *client, args []string) error { return c.printJSON("/admin/ring", nil) },
	"info":     func(c *client, args []string) error { return c.printJSON("/admin/info", nil) },
	"cfstats":  func(c *client, args []string) error { return c.printJSON("/admin/cfstats", nil) },
	"tpstats":  func(c *client, args []string) error { return c.printJSON("/admin/tpstats", nil) },
	"drain":    func(c *client, args []string) error { return c.ack("/admin/drain", nil) },

	"decommission": func(c *client, args []string) error { return c.ack("/admin/decommission", nil) },

	"move": func(c *client, args []string) error {
		token := argOrEmpty(args, 0)
		return c.ack("/admin/move", url.Values{"token": {token}})
	},
	"loadbalance": func(c *client, args []string) error { return c.ack("/admin/loadbalance", nil) },
	"removetoken": func(c *client, args []string) error {
		if len(args) < 1 {
			return usageErrorf("usage: removetoken <token>")
		}
		return c.ack("/admin/removetoken", url.Values{"token": {args[0]}})
	},

	"flush": func(c *client, args []string) error {
		return c.ack("/admin/flush", url.Values{"keyspace": {argOrEmpty(args, 0)}})
	},
	"repair": func(c *client, args []string) error {
		return c.ack("/admin/repair", url.Values{"keyspace": {argOrEmpty(args, 0)}})
	},
	"cleanup": func(c *client, args []string) error {
		return c.ack("/admin/cleanup", url.Values{"keyspace": {argOrEmpty(args, 0)}})
	},
	"compact": func(c *client, args []string) error {
		return c.ack("/admin/compact", url.Values{"keyspace": {argOrEmpty(args, 0)}})
	},

	"setcachecapacity": func(c *client, args []string) error {
		if len(args) < 1 {
			return usageErrorf("usage: setcachecapacity <bytes>")
		}
		return c.ack("/admin/setcachecapacity", url.Values{"bytes": {args[0]}})
	},
	"getcompactionthreshold": func(c *client, args []string) error {
		return c.printJSON("/admin/compactionthreshold", nil)
	},
	"setcompactionthreshold": func(c *client, args []string) error {
		if len(args) < 1 {
			return usageErrorf("usage: setcompactionthreshold <threshold>")
		}
		return c.printJSON("/admin/compactionthreshold", url.Values{"threshold": {args[0]}})
	},

	"streams": func(c *client, args []string) error { return c.printJSON("/admin/streams", nil) },
	"cancelstreamout": func(c *client, args []string) error {
		if len(args) < 1 {
			return usageErrorf("usage: cancelstreamout <range>")
		}
		return c.ack("/admin/cancelstreamout", url.Values{"range": {args[0]}})
	},
	"setstreamthroughput": func(c *client, args []string) error {
		if len(args) < 1 {
			return usageErrorf("usage: setstreamthroughput <mbps>")
		}
		return c.ack("/admin/setstreamthroughput", url.Values{"mbps": {args[0]}})
	},

	"cfhistograms": func(c *client, args []string) error { return c.printJSON("/admin/cfhistograms", nil) },
	"snapshot": func(c *client, args []string) error {
		return c.ack("/admin/snapshot", url.Values{"tag": {argOrEmpty(args, 0)}})
	},
	"clearsnapshot": func(c *client, args []string) error { return c.ack("/admin/clearsnapshot", nil) },

	"gossipinfo":  func(c *client, args []string) error { return c.ack("/admin/gossipinfo", nil) },
	"gossipstop":  func(c *client, args []string) error { return c.ack("/admin/gossipstop", nil) },
	"gossipstart": func(c *client, args []string) error { return c.ack("/admin/gossipstart", nil) },
	"gossippurge": func(c *client, args []string) error { return c.ack("/admin/gossippurge", nil) },

	"resumebootstrap": func(c *client, args []string) error { return c.ack("/admin/resumebootstrap", nil) },
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
