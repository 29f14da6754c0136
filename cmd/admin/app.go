package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/2beens/cutroom-admin/internal/adminapi"
	"github.com/2beens/cutroom-admin/internal/session"

	log "github.com/sirupsen/logrus"
)

const (
	routeHome = "/"
)

var errUsage = errors.New("usage")

// App is the admin shell: it owns the session, the page clients built on top
// of its authorized client, and the current route.
type App struct {
	session   *session.Manager
	dashboard *adminapi.Dashboard
	users     *adminapi.Users
	orders    *adminapi.Orders
	kyc       *adminapi.KYC

	in  *bufio.Reader
	out io.Writer

	mu    sync.Mutex
	route string
}

func NewApp(sessionManager *session.Manager, dashboardCacheTTL time.Duration, in io.Reader, out io.Writer) *App {
	client := sessionManager.AuthorizedClient()
	app := &App{
		session:   sessionManager,
		dashboard: adminapi.NewDashboard(client, dashboardCacheTTL),
		users:     adminapi.NewUsers(client),
		orders:    adminapi.NewOrders(client),
		kyc:       adminapi.NewKYC(client),
		in:        bufio.NewReader(in),
		out:       out,
		route:     routeHome,
	}
	sessionManager.OnSessionExpired(app.onSessionExpired)
	return app
}

func (a *App) onSessionExpired(event session.ExpiredEvent) {
	a.navigate(event.RedirectTo)
	a.dashboard.Invalidate()
	fmt.Fprintf(a.out, "session expired, please log in again [%s]\n", event.RedirectTo)
}

func (a *App) navigate(route string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.route = route
}

func (a *App) Route() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

// Run executes a single command line, e.g. ["users", "ann"].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.printHelp()
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		return a.printHelp()
	case "whoami", "status":
		return a.whoami()
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.session.Logout(ctx)
		a.dashboard.Invalidate()
		a.navigate(a.session.LoginPath())
		fmt.Fprintln(a.out, "logged out")
		return nil
	}

	// everything below is a protected page
	if !a.session.IsAuthenticated() {
		a.navigate(a.session.LoginPath())
		return fmt.Errorf("%s: %w, run login first", cmd, session.ErrNotAuthenticated)
	}
	a.navigate("/" + cmd)

	switch cmd {
	case "change-password":
		return a.changePassword(ctx, args)
	case "dashboard":
		return a.showDashboard(ctx)
	case "users":
		return a.listUsers(ctx, args)
	case "ban", "unban":
		if !a.session.IsSuperAdmin() {
			return errors.New("only super admins can ban or unban users")
		}
		return a.setBanned(ctx, cmd == "ban", args)
	case "orders":
		return a.listOrders(ctx, args)
	case "kyc":
		return a.listKYC(ctx, args)
	case "approve":
		return a.reviewKYC(ctx, true, args)
	case "reject":
		return a.reviewKYC(ctx, false, args)
	default:
		a.navigate(routeHome)
		return fmt.Errorf("unknown command [%s], try help", cmd)
	}
}

// Shell reads commands line by line until EOF or "exit".
func (a *App) Shell(ctx context.Context) error {
	for {
		fmt.Fprintf(a.out, "cutroom-admin %s> ", a.Route())
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) > 0 {
			if fields[0] == "exit" || fields[0] == "quit" {
				return nil
			}
			if runErr := a.Run(ctx, fields); runErr != nil {
				fmt.Fprintf(a.out, "error: %s\n", runErr)
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *App) printHelp() error {
	fmt.Fprint(a.out, `commands:
  login <email> [password]          log in (password is read from stdin when omitted)
  logout                            log out
  whoami                            show the current session
  change-password                   change the password (reads current and new from stdin)
  dashboard                         show platform stats
  users [search] [-role=editor|client] [-banned=true|false] [-page=N]
  ban <user-id> / unban <user-id>   super admins only
  orders [-status=<status>] [-page=N]
  kyc [-status=pending|approved|rejected]
  approve <kyc-id>
  reject <kyc-id> <reason...>
`)
	return nil
}

func (a *App) whoami() error {
	state := a.session.State()
	if state.Admin == nil {
		fmt.Fprintf(a.out, "%s\n", state.Status)
		return nil
	}
	fmt.Fprintf(a.out, "%s as %s <%s> [%s]\n", state.Status, state.Admin.Name, state.Admin.Email, state.Admin.Role)
	if exp, ok := a.session.TokenExpiry(); ok {
		fmt.Fprintf(a.out, "token expires at %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: login <email> [password]", errUsage)
	}
	email := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	} else {
		var err error
		if password, err = a.prompt("password: "); err != nil {
			return err
		}
	}

	result := a.session.Login(ctx, email, password)
	if !result.Success {
		if result.LockedUntil != nil {
			return fmt.Errorf("%s (locked until %s)", result.Message, result.LockedUntil.Local().Format(time.Kitchen))
		}
		return errors.New(result.Message)
	}

	a.dashboard.Invalidate()
	a.navigate(routeHome)
	log.Debugf("logged in as %s", result.Admin.Email)
	fmt.Fprintf(a.out, "welcome, %s\n", result.Admin.Name)
	return nil
}

func (a *App) changePassword(ctx context.Context, args []string) error {
	var current, next string
	if len(args) == 2 {
		current, next = args[0], args[1]
	} else {
		var err error
		if current, err = a.prompt("current password: "); err != nil {
			return err
		}
		if next, err = a.prompt("new password: "); err != nil {
			return err
		}
	}

	result := a.session.ChangePassword(ctx, current, next)
	if !result.Success {
		return errors.New(result.Message)
	}
	fmt.Fprintln(a.out, result.Message)
	return nil
}

func (a *App) showDashboard(ctx context.Context) error {
	stats, err := a.dashboard.Stats(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "users\t%d\t(editors %d, clients %d)\n", stats.TotalUsers, stats.TotalEditors, stats.TotalClients)
	fmt.Fprintf(tw, "active orders\t%d\t\n", stats.ActiveOrders)
	fmt.Fprintf(tw, "completed orders\t%d\t\n", stats.CompletedOrders)
	fmt.Fprintf(tw, "pending kyc\t%d\t\n", stats.PendingKYC)
	fmt.Fprintf(tw, "revenue\t%.2f\t\n", stats.Revenue)
	return tw.Flush()
}

func (a *App) listUsers(ctx context.Context, args []string) error {
	opts, rest := splitOptions(args)
	params := adminapi.UserListParams{
		Page:   atoiOr(opts["page"], 1),
		Role:   adminapi.UserRole(opts["role"]),
		Search: strings.Join(rest, " "),
	}
	if banned, ok := opts["banned"]; ok {
		b := banned == "true"
		params.Banned = &b
	}

	page, err := a.users.List(ctx, params)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tKYC\tBANNED")
	for _, u := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", u.ID, u.Name, u.Email, u.Role, u.KYCStatus, u.IsBanned)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.printPagination(page.Pagination)
	return nil
}

func (a *App) setBanned(ctx context.Context, ban bool, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: ban|unban <user-id>", errUsage)
	}
	var err error
	if ban {
		err = a.users.Ban(ctx, args[0])
	} else {
		err = a.users.Unban(ctx, args[0])
	}
	if err != nil {
		return err
	}
	a.dashboard.Invalidate()
	fmt.Fprintln(a.out, "done")
	return nil
}

func (a *App) listOrders(ctx context.Context, args []string) error {
	opts, _ := splitOptions(args)
	page, err := a.orders.List(ctx, adminapi.OrderListParams{
		Page:   atoiOr(opts["page"], 1),
		Status: adminapi.OrderStatus(opts["status"]),
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tAMOUNT\tCLIENT\tEDITOR")
	for _, o := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", o.ID, o.Title, o.Status, o.Amount, o.ClientName, o.EditorName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.printPagination(page.Pagination)
	return nil
}

func (a *App) listKYC(ctx context.Context, args []string) error {
	opts, _ := splitOptions(args)
	submissions, err := a.kyc.List(ctx, adminapi.KYCStatus(opts["status"]))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tDOCUMENT\tSTATUS\tSUBMITTED")
	for _, s := range submissions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.UserName, s.DocumentType, s.Status, s.SubmittedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}

func (a *App) reviewKYC(ctx context.Context, approve bool, args []string) error {
	var err error
	if approve {
		if len(args) != 1 {
			return fmt.Errorf("%w: approve <kyc-id>", errUsage)
		}
		err = a.kyc.Approve(ctx, args[0])
	} else {
		if len(args) < 2 {
			return fmt.Errorf("%w: reject <kyc-id> <reason...>", errUsage)
		}
		err = a.kyc.Reject(ctx, args[0], strings.Join(args[1:], " "))
	}
	if err != nil {
		return err
	}
	a.dashboard.Invalidate()
	fmt.Fprintln(a.out, "done")
	return nil
}

func (a *App) printPagination(p adminapi.Pagination) {
	fmt.Fprintf(a.out, "page %d/%d, %d total\n", p.Page, max(p.TotalPages, 1), p.Total)
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// splitOptions separates -key=value options from positional args.
func splitOptions(args []string) (map[string]string, []string) {
	opts := map[string]string{}
	var rest []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			key, value, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
			opts[key] = value
			continue
		}
		rest = append(rest, arg)
	}
	return opts, rest
}

func atoiOr(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 {
		return fallback
	}
	return n
}
