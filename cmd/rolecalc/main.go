// Command rolecalc is a terminal client for the role-gated calculator.
//
// The signed-in session is kept on disk (or in Redis, per config) so that
// separate invocations share it:
//
//	rolecalc register -identity carol -contact carol@example.com -role DMrole
//	rolecalc confirm -identity carol -code 123456
//	rolecalc login -identity carol
//	rolecalc calc 6 / 3
//	rolecalc admin users
//	rolecalc logout
//
// Without a config file the client talks to rolecalc-sandbox on
// 127.0.0.1:8088.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/rolecalc"
	"github.com/MrEthical07/rolecalc/internal/logging"
)

const usage = `usage: rolecalc [-config file] <command> [flags]

commands:
  register     create an account (-identity -contact -password -role)
  confirm      confirm a registration (-identity -code)
  login        sign in with a password, answering MFA when asked
  phone-login  sign in with a one-time code sent to a phone
  whoami       show the signed-in identity and its permissions
  calc         calculate: rolecalc calc <a> <op> <b>
  admin        admin panel: rolecalc admin help
  logout       sign out and forget the stored session
`

type cli struct {
	engine *rolecalc.Engine
	in     *bufio.Reader
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rolecalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("ROLECALC_CONFIG"), "YAML config file")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := rolecalc.LoadConfigOver(localDefaults(), *configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	logger := logging.New(cfg.Logging, "rolecalc")
	engine, err := rolecalc.New().WithConfig(cfg).WithLogger(logger.Logger).Build()
	if err != nil {
		fmt.Fprintln(stderr, "init:", err)
		return 1
	}
	defer engine.Close()

	c := &cli{engine: engine, in: bufio.NewReader(stdin), out: stdout}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if err := c.dispatch(ctx, cmd, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		fmt.Fprintln(stderr, "error:", describe(err))
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return c.register(ctx, args)
	case "confirm":
		return c.confirm(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "phone-login":
		return c.phoneLogin(ctx, args)
	case "whoami":
		return c.whoami(ctx)
	case "calc":
		return c.calc(ctx, args)
	case "admin":
		return c.admin(ctx, args)
	case "logout":
		if err := c.engine.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "signed out")
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	}
	return errUsage
}

// localDefaults points at rolecalc-sandbox and keeps the session in the
// user's config directory.
func localDefaults() rolecalc.Config {
	cfg := rolecalc.DefaultConfig()
	cfg.Provider.Endpoint = "http://127.0.0.1:8088/idp"
	cfg.Provider.ClientID = "rolecalc-local"
	cfg.API.Endpoint = "http://127.0.0.1:8088/api/"
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"

	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	cfg.Session.Backend = rolecalc.SessionBackendFile
	cfg.Session.Dir = filepath.Join(dir, "rolecalc")
	return cfg
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) valueOrPrompt(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return c.prompt(label)
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := newFlags("register")
	identity := fs.String("identity", "", "username")
	contact := fs.String("contact", "", "email address or E.164 phone number")
	password := fs.String("password", "", "password (prompted when empty)")
	role := fs.String("role", rolecalc.RoleAddSubtract, "requested role")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	pw, err := c.valueOrPrompt(*password, "Password: ")
	if err != nil {
		return err
	}
	st, err := c.engine.Register(ctx, rolecalc.RegisterInput{
		Identity: *identity,
		Contact:  *contact,
		Password: pw,
		Role:     *role,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %s; confirm with: rolecalc confirm -identity %s -code <code>\n", st.PendingIdentity, st.PendingIdentity)
	return nil
}

func (c *cli) confirm(ctx context.Context, args []string) error {
	fs := newFlags("confirm")
	identity := fs.String("identity", "", "username to confirm")
	code := fs.String("code", "", "confirmation code (prompted when empty)")
	if err := fs.Parse(args); err != nil || *identity == "" {
		return errUsage
	}
	v, err := c.valueOrPrompt(*code, "Confirmation code: ")
	if err != nil {
		return err
	}
	st, err := c.engine.ConfirmRegistration(ctx, *identity, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "confirmed; sign in with: rolecalc login -identity %s\n", st.PrefillIdentity)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	identity := fs.String("identity", "", "username")
	password := fs.String("password", "", "password (prompted when empty)")
	code := fs.String("code", "", "MFA code (prompted when a challenge is issued)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	id, err := c.valueOrPrompt(*identity, "Username: ")
	if err != nil {
		return err
	}
	pw, err := c.valueOrPrompt(*password, "Password: ")
	if err != nil {
		return err
	}
	st, err := c.engine.SignIn(ctx, id, pw)
	if err != nil {
		return err
	}
	return c.finishSignIn(ctx, st, *code)
}

func (c *cli) phoneLogin(ctx context.Context, args []string) error {
	fs := newFlags("phone-login")
	phone := fs.String("phone", "", "phone number")
	code := fs.String("code", "", "one-time code (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	p, err := c.valueOrPrompt(*phone, "Phone number: ")
	if err != nil {
		return err
	}
	st, err := c.engine.RequestPhoneOTP(ctx, p)
	if err != nil {
		return err
	}
	return c.finishSignIn(ctx, st, *code)
}

// finishSignIn answers challenges until the flow authenticates. A rejected
// code is reported and asked for again while the provider keeps the
// challenge open.
func (c *cli) finishSignIn(ctx context.Context, st rolecalc.FlowState, code string) error {
	for st.Step == rolecalc.StepAwaitingChallenge {
		v, err := c.valueOrPrompt(code, challengeLabel(st))
		if err != nil {
			c.engine.AbandonFlow()
			return err
		}
		code = ""
		next, err := c.engine.RespondToChallenge(ctx, v)
		if err != nil {
			if next.Step != rolecalc.StepAwaitingChallenge {
				return err
			}
			fmt.Fprintln(c.out, describe(err))
		}
		st = next
	}
	if st.Step != rolecalc.StepAuthenticated {
		return fmt.Errorf("sign-in did not complete")
	}
	return c.whoami(ctx)
}

func challengeLabel(st rolecalc.FlowState) string {
	switch st.Challenge {
	case rolecalc.ChallengeSMSMFA:
		if dest := st.ChallengeParameters["CODE_DELIVERY_DESTINATION"]; dest != "" {
			return "SMS code sent to " + dest + ": "
		}
		return "SMS code: "
	case rolecalc.ChallengeTOTPMFA:
		return "Authenticator code: "
	case rolecalc.ChallengePhoneCustom:
		if last := st.ChallengeParameters["phone"]; last != "" {
			return "Code sent to phone ending " + last + ": "
		}
	}
	return "Code: "
}

func (c *cli) restore(ctx context.Context) (rolecalc.Principal, error) {
	p, ok, err := c.engine.Restore(ctx)
	if err != nil {
		return rolecalc.Principal{}, err
	}
	if !ok {
		return rolecalc.Principal{}, rolecalc.ErrNotAuthenticated
	}
	return p, nil
}

func (c *cli) whoami(ctx context.Context) error {
	p, err := c.restore(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "signed in as %s\n", p.Identity)
	fmt.Fprintf(c.out, "roles: %s\n", strings.Join(p.Roles, ", "))
	ops := c.engine.Permissions()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, string(op))
	}
	fmt.Fprintf(c.out, "permissions: %s\n", strings.Join(names, ", "))
	if c.engine.IsAdmin() {
		fmt.Fprintln(c.out, "admin: yes")
	}
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "token expires: %s\n", p.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// describe turns engine errors into one line for the terminal.
func describe(err error) string {
	var denied *rolecalc.PermissionDenied
	switch {
	case errors.As(err, &denied):
		if denied.Message != "" {
			return denied.Message
		}
		return err.Error()
	case errors.Is(err, rolecalc.ErrNotAuthenticated):
		return "not signed in; run rolecalc login"
	case errors.Is(err, rolecalc.ErrSessionExpired):
		return "session expired; run rolecalc login"
	case errors.Is(err, rolecalc.ErrNetwork):
		return "service unreachable: " + err.Error()
	}
	return err.Error()
}
