package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/edvin/devtunnel/internal/tunnelctl"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "routes":
		err = cmdRoutes(ctx, os.Args[2:])
	case "publish":
		err = cmdPublish(ctx, os.Args[2:])
	case "unpublish":
		err = cmdUnpublish(ctx, os.Args[2:])
	case "port":
		err = cmdPort(ctx, os.Args[2:])
	case "sync":
		err = cmdSimple(ctx, "sync", os.Args[2:], "/sync")
	case "restart":
		err = cmdSimple(ctx, "restart", os.Args[2:], "/restart")
	case "orphans":
		err = cmdOrphans(ctx, os.Args[2:])
	case "status":
		err = cmdStatus(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet registers the connection flags every command shares.
func newFlagSet(name string) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	api := fs.String("api", envOr("TUNNEL_API_URL", "http://127.0.0.1:8095"), "Tunnel API base URL")
	key := fs.String("api-key", os.Getenv("TUNNEL_API_KEY"), "API key")
	return fs, api, key
}

func cmdRoutes(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("routes")
	project := fs.String("project", "", "Only routes linked to this project")
	status := fs.String("status", "", "Only routes in this status")
	fs.Parse(args)

	q := url.Values{}
	if *project != "" {
		q.Set("project_id", *project)
	}
	if *status != "" {
		q.Set("status", *status)
	}
	path := "/routes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var routes []struct {
		Hostname  string  `json:"hostname"`
		Service   string  `json:"service"`
		Status    string  `json:"status"`
		ProjectID *string `json:"project_id"`
		Protected bool    `json:"protection_enabled"`
	}
	if err := tunnelctl.NewClient(*api, *key).Get(ctx, path, &routes); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOSTNAME\tSERVICE\tSTATUS\tPROTECTED\tPROJECT")
	for _, r := range routes {
		project := "-"
		if r.ProjectID != nil {
			project = *r.ProjectID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", r.Hostname, r.Service, r.Status, r.Protected, project)
	}
	return w.Flush()
}

func cmdPublish(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("publish")
	port := fs.IntP("port", "p", 0, "Local port (required)")
	host := fs.String("host", "", "Local host (default localhost)")
	scheme := fs.String("scheme", "", "Origin scheme: http or https")
	project := fs.String("project", "", "Project ID to link")
	description := fs.String("description", "", "Free-form description")
	protect := fs.Bool("protect", false, "Put the route behind the identity provider")
	websocket := fs.Bool("websocket", false, "Allow WebSocket upgrades")
	fs.Parse(args)

	if fs.NArg() < 1 || *port == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tunnelctl publish --port PORT [flags] <subdomain>")
		os.Exit(1)
	}

	return call(ctx, *api, *key, "POST", "/publish", map[string]any{
		"subdomain":         fs.Arg(0),
		"local_port":        *port,
		"local_host":        *host,
		"scheme":            *scheme,
		"project_id":        *project,
		"description":       *description,
		"enable_protection": *protect,
		"websocket":         *websocket,
	})
}

func cmdUnpublish(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("unpublish")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tunnelctl unpublish <hostname>")
		os.Exit(1)
	}
	return call(ctx, *api, *key, "DELETE", tunnelctl.RoutePath("/publish", fs.Arg(0)), nil)
}

func cmdPort(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("port")
	host := fs.String("host", "", "New local host")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: tunnelctl port [--host HOST] <hostname> <port>")
		os.Exit(1)
	}
	var port int
	if _, err := fmt.Sscanf(fs.Arg(1), "%d", &port); err != nil {
		return fmt.Errorf("invalid port %q", fs.Arg(1))
	}
	return call(ctx, *api, *key, "PUT", tunnelctl.RoutePath("/routes", fs.Arg(0))+"/port",
		map[string]any{"local_port": port, "local_host": *host})
}

func cmdOrphans(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("orphans")
	del := fs.Bool("delete", false, "Delete every orphaned route")
	confirm := fs.Bool("yes", false, "Confirm --delete")
	fs.Parse(args)

	if *del {
		if fs.NArg() == 1 {
			return call(ctx, *api, *key, "DELETE", tunnelctl.RoutePath("/routes/orphaned", fs.Arg(0)), nil)
		}
		return call(ctx, *api, *key, "DELETE", "/routes/orphaned", map[string]any{"confirm": *confirm})
	}
	return call(ctx, *api, *key, "GET", "/routes/orphaned", nil)
}

func cmdStatus(ctx context.Context, args []string) error {
	fs, api, key := newFlagSet("status")
	fs.Parse(args)
	return call(ctx, *api, *key, "GET", "/tunnel/status", nil)
}

func cmdSimple(ctx context.Context, name string, args []string, path string) error {
	fs, api, key := newFlagSet(name)
	fs.Parse(args)
	return call(ctx, *api, *key, "POST", path, nil)
}

// call performs one request and pretty-prints the JSON reply.
func call(ctx context.Context, api, key, method, path string, body any) error {
	c := tunnelctl.NewClient(api, key)
	var out json.RawMessage
	var err error
	switch method {
	case "GET":
		err = c.Get(ctx, path, &out)
	case "POST":
		err = c.Post(ctx, path, body, &out)
	case "PUT":
		err = c.Put(ctx, path, body, &out)
	case "DELETE":
		err = c.Delete(ctx, path, body, &out)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tunnelctl <command> [flags]

Commands:
  routes      List published routes
  publish     Publish a local port under a subdomain
  unpublish   Remove a published hostname
  port        Point a route at a new local port
  sync        Reconcile the route store with the live tunnel
  orphans     List orphaned routes (--delete [hostname] to remove)
  restart     Restart the tunnel daemon
  status      Show tunnel and daemon status

Connection flags: --api (TUNNEL_API_URL), --api-key (TUNNEL_API_KEY)`)
}
