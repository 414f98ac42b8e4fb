package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/MrEthical07/rolecalc"
	"github.com/MrEthical07/rolecalc/permission"
)

const adminUsage = `usage: rolecalc admin <command>

  overview                         users, roles and history at once
  users                            list users
  set-role <user> <role>           replace a user's role
  block <user> | unblock <user>    disable or re-enable a user
  delete-user <user>
  roles                            list roles
  create-role <name> <op>...       ops: add subtract multiply divide
  delete-role <name>
  history                          global calculation history
  delete-history <user-id> <timestamp>
`

var opAliases = map[string]rolecalc.Operation{
	"+": rolecalc.OpAdd,
	"-": rolecalc.OpSubtract,
	"−": rolecalc.OpSubtract,
	"*": rolecalc.OpMultiply,
	"x": rolecalc.OpMultiply,
	"×": rolecalc.OpMultiply,
	"/": rolecalc.OpDivide,
	"÷": rolecalc.OpDivide,
}

func parseOperation(s string) (rolecalc.Operation, error) {
	if op, ok := opAliases[s]; ok {
		return op, nil
	}
	return permission.ParseOperation(s)
}

func (c *cli) calc(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("calc takes three arguments: <a> <op> <b>")
	}
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("first operand: %w", err)
	}
	op, err := parseOperation(args[1])
	if err != nil {
		return err
	}
	b, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("second operand: %w", err)
	}

	if _, err := c.restore(ctx); err != nil {
		return err
	}
	res, err := c.engine.Calculate(ctx, a, b, op)
	if err != nil {
		return err
	}
	line := res.Expression()
	if res.Offline {
		line += "  (offline)"
	}
	fmt.Fprintln(c.out, line)
	if len(res.History) > 0 {
		fmt.Fprintln(c.out, "recent:")
		for _, h := range res.History {
			fmt.Fprintf(c.out, "  %s  %s\n", h.Timestamp, rolecalc.FormatExpression(h.Operand1.Float64(), h.Operand2.Float64(), h.Operation, h.Result.Float64()))
		}
	}
	return nil
}

func (c *cli) admin(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" {
		fmt.Fprint(c.out, adminUsage)
		return nil
	}
	if _, err := c.restore(ctx); err != nil {
		return err
	}
	panel, err := c.engine.Admin()
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("admin %s: missing arguments\n%s", cmd, adminUsage)
		}
		return nil
	}
	var msg string
	switch cmd {
	case "overview":
		ov, err := panel.Overview(ctx)
		if err != nil {
			return err
		}
		c.printUsers(ov.Users)
		fmt.Fprintln(c.out)
		c.printRoles(ov.Roles)
		fmt.Fprintln(c.out)
		c.printHistory(ov.History)
		return nil
	case "users":
		users, err := panel.ListUsers(ctx)
		if err != nil {
			return err
		}
		c.printUsers(users)
		return nil
	case "roles":
		roles, err := panel.ListRoles(ctx)
		if err != nil {
			return err
		}
		c.printRoles(roles)
		return nil
	case "history":
		history, err := panel.ListHistory(ctx)
		if err != nil {
			return err
		}
		c.printHistory(history)
		return nil
	case "set-role":
		if err := need(2); err != nil {
			return err
		}
		msg, err = panel.SetUserRole(ctx, rest[0], rest[1])
	case "block", "unblock":
		if err := need(1); err != nil {
			return err
		}
		msg, err = panel.SetUserBlocked(ctx, rest[0], cmd == "block")
	case "delete-user":
		if err := need(1); err != nil {
			return err
		}
		msg, err = panel.DeleteUser(ctx, rest[0])
	case "create-role":
		if err := need(2); err != nil {
			return err
		}
		perms := make([]rolecalc.Operation, 0, len(rest)-1)
		for _, s := range rest[1:] {
			op, perr := parseOperation(s)
			if perr != nil {
				return perr
			}
			perms = append(perms, op)
		}
		msg, err = panel.CreateRole(ctx, rest[0], perms)
	case "delete-role":
		if err := need(1); err != nil {
			return err
		}
		msg, err = panel.DeleteRole(ctx, rest[0])
	case "delete-history":
		if err := need(2); err != nil {
			return err
		}
		msg, err = panel.DeleteHistory(ctx, rest[0], rest[1])
	default:
		fmt.Fprint(c.out, adminUsage)
		return errUsage
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, msg)
	return nil
}

func (c *cli) printUsers(users []rolecalc.UserRecord) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tCONTACT\tGROUPS\tSTATUS\tENABLED\tCREATED")
	for _, u := range users {
		contact := u.Email
		if contact == "" {
			contact = u.Phone
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", u.Username, contact, strings.Join(u.Groups, ","), u.Status, u.Enabled, u.Created)
	}
	_ = tw.Flush()
}

func (c *cli) printRoles(roles []rolecalc.RoleRecord) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tPERMISSIONS\tDEFAULT")
	for _, r := range roles {
		perms := make([]string, 0, len(r.Permissions))
		for _, op := range r.Permissions {
			perms = append(perms, string(op))
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\n", r.RoleName, strings.Join(perms, ","), r.IsDefault)
	}
	_ = tw.Flush()
}

func (c *cli) printHistory(history []rolecalc.HistoryEntry) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tTIMESTAMP\tCALCULATION")
	for _, h := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.UserID, h.Timestamp, rolecalc.FormatExpression(h.Operand1.Float64(), h.Operand2.Float64(), h.Operation, h.Result.Float64()))
	}
	_ = tw.Flush()
}
