// Command wvn is the CLI entry point.
//
// This tool joins two machines into a point-to-point virtual network. Each
// side owns a TUN interface; IP packets travel between them over a WebRTC
// DataChannel. Session descriptions are exchanged as compact text tokens,
// either copied between terminals or carried by a small WebSocket server.
//
// It can be launched interactively (no -role) or non-interactively via flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"

	"github.com/1ureka/wvn/internal/app"
	"github.com/1ureka/wvn/internal/config"
	"github.com/1ureka/wvn/internal/util"
)

var version = "dev"

// options holds the raw flag values; set records which were given.
type options struct {
	role          string
	name          string
	addr          string
	mtu           int
	frame         int
	pi            bool
	unordered     bool
	icePort       int
	stun          string
	turn          string
	turnUser      string
	turnPass      string
	gatherTimeout time.Duration
	tokenTimeout  time.Duration
	wsListen      string
	wsURL         string
	debug         bool

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: map[string]bool{}}

	fs := flag.NewFlagSet("wvn", flag.ContinueOnError)
	fs.StringVar(&o.role, "role", "", "Role: offerer or answerer")
	fs.StringVar(&o.name, "name", config.DefaultInterfaceName, "TUN interface name")
	fs.StringVar(&o.addr, "addr", "", "Interface address in CIDR form (default 10.25.0.1/24 offerer, 10.25.0.2/24 answerer)")
	fs.IntVar(&o.mtu, "mtu", config.DefaultMTU, "Interface MTU")
	fs.IntVar(&o.frame, "frame", 0, "Largest packet relayed per message (default 500)")
	fs.BoolVar(&o.pi, "pi", false, "Carry the 4-byte packet information header on the wire (default on for Linux)")
	fs.BoolVar(&o.unordered, "unordered", false, "Use an unordered channel without retransmits")
	fs.IntVar(&o.icePort, "ice-port", 0, "Serve all ICE traffic on this UDP port")
	fs.StringVar(&o.stun, "stun", "", "Comma-separated STUN URLs")
	fs.StringVar(&o.turn, "turn", "", "Comma-separated TURN URLs")
	fs.StringVar(&o.turnUser, "turn-user", "", "TURN username")
	fs.StringVar(&o.turnPass, "turn-pass", "", "TURN credential")
	fs.DurationVar(&o.gatherTimeout, "gather-timeout", 0, "Bound on ICE gathering (0 waits forever)")
	fs.DurationVar(&o.tokenTimeout, "token-timeout", 0, "Bound on waiting for the peer's token (0 waits forever)")
	fs.StringVar(&o.wsListen, "ws-listen", "", "Offerer: serve the token exchange over WebSocket on this address")
	fs.StringVar(&o.wsURL, "ws-url", "", "Answerer: fetch tokens from this WebSocket URL (with ?pin=)")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	return o, nil
}

// config builds the session configuration for role. Flags override the
// role defaults; ICE servers come from flags, then env, then defaults.
func (o *options) config(role config.Role, getenv func(string) string) (config.Config, error) {
	cfg := config.Default(role)

	cfg.Interface.Name = o.name
	cfg.Interface.MTU = o.mtu
	if o.addr != "" {
		cfg.Interface.Address = o.addr
	}
	if o.set["pi"] {
		cfg.Interface.PacketInfo = o.pi
	}
	if o.set["frame"] {
		cfg.FrameSize = o.frame
	}
	cfg.Unordered = o.unordered
	cfg.ICEPort = o.icePort
	cfg.GatherTimeout = o.gatherTimeout
	cfg.TokenTimeout = o.tokenTimeout
	cfg.WSListen = o.wsListen
	cfg.Debug = o.debug

	if o.wsURL != "" {
		u, err := normalizeWSURL(o.wsURL, "")
		if err != nil {
			return cfg, err
		}
		cfg.WSURL = u
	}

	servers, err := o.iceServers(getenv)
	if err != nil {
		return cfg, err
	}
	cfg.ICEServers = servers

	return cfg, cfg.Validate()
}

func (o *options) iceServers(getenv func(string) string) ([]webrtc.ICEServer, error) {
	if o.set["stun"] || o.set["turn"] {
		return config.ParseICEServerLists(o.stun, o.turn, o.turnUser, o.turnPass)
	}

	servers, err := config.ICEServersFromEnv(getenv)
	if err != nil {
		return nil, err
	}
	if len(servers) > 0 {
		return servers, nil
	}
	return config.DefaultICEServers(), nil
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	if opts.debug {
		util.EnableDebug()
	}

	pterm.Fprintln(os.Stderr, pterm.Info.Sprint(fmt.Sprintf("Wvn — v%s", version)))
	pterm.Fprintln(os.Stderr)

	var role config.Role
	if opts.role == "" {
		// No -role flag → interactive mode.
		role = askInteractive(opts)
	} else if role, err = config.ParseRole(opts.role); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	cfg, err := opts.config(role, os.Getenv)
	if err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	for _, w := range startupWarnings(cfg) {
		util.LogWarning("%s", w.msg)
	}

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed tunnel connection")
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askInteractive asks for the role and, when neither WS flag is given, how
// tokens should be exchanged. It fills opts accordingly.
func askInteractive(opts *options) config.Role {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Offerer  — Start a session", "Answerer — Join a session"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	role := config.RoleOfferer
	if strings.HasPrefix(choice, "Answerer") {
		role = config.RoleAnswerer
	}

	if opts.wsListen != "" || opts.wsURL != "" {
		return role
	}

	method, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Copy and paste tokens", "WebSocket"}).
		WithDefaultText("Token exchange").
		Show()
	pterm.Println()

	if method == "WebSocket" {
		if role == config.RoleOfferer {
			opts.wsListen = ":0"
		} else {
			opts.wsURL = askURL()
		}
	}
	return role
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a raw WebSocket URL, defaulting the scheme to wss
// and the path to /ws. A non-empty pin replaces the "pin" query parameter.
func normalizeWSURL(raw, pin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	if pin != "" {
		q := u.Query()
		q.Set("pin", pin)
		u.RawQuery = q.Encode()
	}
	u.Fragment = ""

	return u.String(), nil
}

// askURL prompts for the offerer's WebSocket URL and PIN until a valid URL
// is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("WebSocket URL (e.g. wss://***.asse.devtunnels.ms/ws)").
			Show()
		pin, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("PIN").
			Show()

		wsURL, err := normalizeWSURL(raw, strings.TrimSpace(pin))
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
