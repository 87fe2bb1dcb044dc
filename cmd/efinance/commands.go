package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"efinance/internal/amqp"
	"efinance/internal/api"
	appcli "efinance/internal/cli"
	"efinance/internal/core"
	"efinance/internal/services"
)

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "register",
			Usage: "create an account and sign in",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "first-name"},
				&cli.StringFlag{Name: "last-name"},
				&cli.StringFlag{Name: "email", Required: true},
				passwordFlag("password"),
				&cli.StringFlag{Name: "password-confirmation", Usage: "defaults to --password"},
			},
			Action: register,
		},
		{
			Name:  "login",
			Usage: "sign in and store the session",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
				passwordFlag("password"),
			},
			Action: login,
		},
		{Name: "logout", Usage: "sign out and forget the stored session", Action: logout},
		{Name: "status", Usage: "show the stored session without calling the backend", Action: status},
		{Name: "whoami", Usage: "fetch the signed-in profile", Action: whoami},
		{Name: "refresh", Usage: "renew the access token now", Action: refresh},
		{Name: "dashboard", Usage: "show the dashboard and statistics", Action: dashboard},
		{
			Name:  "profile",
			Usage: "manage the profile",
			Subcommands: []*cli.Command{{
				Name:  "update",
				Usage: "change profile fields",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "first-name"},
					&cli.StringFlag{Name: "last-name"},
					&cli.StringFlag{Name: "email"},
				},
				Action: updateProfile,
			}},
		},
		passwordCommand(),
		categoriesCommand(),
		transactionsCommand(),
		{Name: "events", Usage: "print session events from the broker until interrupted", Action: events},
	}
}

func passwordFlag(name string) cli.Flag {
	return &cli.StringFlag{Name: name, Required: true, EnvVars: []string{"EFINANCE_PASSWORD"}}
}

func passwordCommand() *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "change or reset the password",
		Subcommands: []*cli.Command{
			{
				Name: "change",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "old", Required: true},
					&cli.StringFlag{Name: "new", Required: true},
					&cli.StringFlag{Name: "confirm", Usage: "defaults to --new"},
				},
				Action: changePassword,
			},
			{
				Name:   "reset-request",
				Usage:  "email a reset code",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "email", Required: true}},
				Action: resetRequest,
			},
			{
				Name:  "reset-validate",
				Usage: "check a reset code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "code", Required: true},
				},
				Action: resetValidate,
			},
			{
				Name:  "reset-confirm",
				Usage: "set a new password with a reset code",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "code", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "confirm", Usage: "defaults to --password"},
				},
				Action: resetConfirm,
			},
		},
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:    "categories",
		Aliases: []string{"cat"},
		Usage:   "manage categories",
		Subcommands: []*cli.Command{
			{Name: "list", Flags: []cli.Flag{pageFlag()}, Action: listCategories},
			{
				Name: "create",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "type", Required: true, Usage: "income or expense"},
					&cli.Int64Flag{Name: "group"},
				},
				Action: createCategory,
			},
			{
				Name:      "update",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "type"},
				},
				Action: updateCategory,
			},
			{Name: "delete", ArgsUsage: "ID", Action: deleteCategory},
			{Name: "stats", Action: categoryStats},
			{Name: "transactions", ArgsUsage: "ID", Action: categoryTransactions},
		},
	}
}

func transactionsCommand() *cli.Command {
	fields := func(required bool) []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "amount", Required: required},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD (create defaults to today)"},
			&cli.StringFlag{Name: "type", Required: required, Usage: "income or expense"},
			&cli.Int64Flag{Name: "category", Required: required},
			&cli.StringFlag{Name: "description"},
			&cli.PathFlag{Name: "proof", Usage: "attach a proof file"},
		}
	}
	return &cli.Command{
		Name:    "transactions",
		Aliases: []string{"tx"},
		Usage:   "manage transactions",
		Subcommands: []*cli.Command{
			{Name: "list", Flags: []cli.Flag{pageFlag()}, Action: listTransactions},
			{Name: "get", ArgsUsage: "ID", Action: getTransaction},
			{Name: "create", Flags: fields(true), Action: createTransaction},
			{Name: "update", ArgsUsage: "ID", Flags: fields(false), Action: updateTransaction},
			{Name: "delete", ArgsUsage: "ID", Action: deleteTransaction},
			{Name: "stats", Action: transactionStats},
			{Name: "by-category", Action: transactionsByCategory},
		},
	}
}

func pageFlag() cli.Flag {
	return &cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1}
}

func register(c *cli.Context) error {
	password := c.String("password")
	confirm := c.String("password-confirmation")
	if confirm == "" {
		confirm = password
	}
	result, err := appFrom(c).Auth.Register(c.Context, services.Registration{
		FirstName:            c.String("first-name"),
		LastName:             c.String("last-name"),
		Email:                c.String("email"),
		Password:             password,
		PasswordConfirmation: confirm,
	})
	if err != nil {
		return err
	}
	return outputFor(c).auth(result, "account created")
}

// login reports a rejected sign-in with the backend message rather than as
// an expired session. A stale stored session whose renewal fails has been
// cleared by then, so the sign-in is sent once more without it.
func login(c *cli.Context) error {
	auth := appFrom(c).Auth
	email, password := c.String("email"), c.String("password")
	result, err := auth.Login(c.Context, email, password)
	var authErr *api.AuthError
	if errors.As(err, &authErr) && authErr.Reason == api.ReasonRenewalFailed {
		result, err = auth.Login(c.Context, email, password)
	}
	if errors.As(err, &authErr) {
		if rejection, ok := authErr.Rejection(); ok {
			return cli.Exit(rejection.Message, exitFailure)
		}
	}
	if err != nil {
		return err
	}
	return outputFor(c).auth(result, "signed in")
}

func logout(c *cli.Context) error {
	if err := appFrom(c).Auth.Logout(c.Context); err != nil {
		return err
	}
	return outputFor(c).message(core.Message{}, "signed out")
}

func status(c *cli.Context) error {
	app := appFrom(c)
	st, err := app.Auth.Status(c.Context)
	if err != nil {
		return err
	}
	user, hasUser, err := app.Auth.CachedUser(c.Context)
	if err != nil {
		return err
	}

	view := struct {
		Authenticated bool       `json:"authenticated"`
		HasRefresh    bool       `json:"has_refresh"`
		UserID        string     `json:"user_id,omitempty"`
		ExpiresAt     *time.Time `json:"expires_at,omitempty"`
		Store         string     `json:"store"`
		User          *core.User `json:"user,omitempty"`
	}{
		Authenticated: st.Authenticated,
		HasRefresh:    st.HasRefresh,
		UserID:        st.UserID,
		Store:         app.StoreDescription(),
	}
	if !st.ExpiresAt.IsZero() {
		view.ExpiresAt = &st.ExpiresAt
	}
	if hasUser {
		view.User = &user
	}

	return outputFor(c).render(view, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Signed in\t%t\n", st.Authenticated)
		fmt.Fprintf(tw, "Store\t%s\n", view.Store)
		if hasUser {
			fmt.Fprintf(tw, "User\t%s <%s>\n", user.FullName(), user.Email)
		}
		if !st.ExpiresAt.IsZero() {
			state := "valid"
			if st.Expired(time.Now()) {
				state = "expired, renewed on next call"
			}
			fmt.Fprintf(tw, "Access token\t%s until %s\n", state, st.ExpiresAt.Local().Format(time.RFC3339))
		}
		fmt.Fprintf(tw, "Refresh token\t%t\n", st.HasRefresh)
	})
}

func whoami(c *cli.Context) error {
	user, err := appFrom(c).Auth.CurrentUser(c.Context)
	if err != nil {
		return err
	}
	return outputFor(c).user(user)
}

func refresh(c *cli.Context) error {
	if _, err := appFrom(c).Auth.RefreshToken(c.Context); err != nil {
		return err
	}
	return outputFor(c).message(core.Message{}, "access token renewed")
}

func dashboard(c *cli.Context) error {
	app := appFrom(c)
	ov, err := services.LoadOverview(c.Context, app.Auth, app.Categories, app.Transactions)
	if err != nil {
		return err
	}
	return outputFor(c).overview(ov)
}

func updateProfile(c *cli.Context) error {
	var in services.ProfileUpdate
	if c.IsSet("first-name") {
		in.FirstName = ptr(c.String("first-name"))
	}
	if c.IsSet("last-name") {
		in.LastName = ptr(c.String("last-name"))
	}
	if c.IsSet("email") {
		in.Email = ptr(c.String("email"))
	}
	user, err := appFrom(c).Auth.UpdateProfile(c.Context, in)
	if err != nil {
		return err
	}
	return outputFor(c).user(user)
}

func changePassword(c *cli.Context) error {
	msg, err := appFrom(c).Auth.ChangePassword(c.Context, services.PasswordChange{
		OldPassword:             c.String("old"),
		NewPassword:             c.String("new"),
		NewPasswordConfirmation: orDefault(c.String("confirm"), c.String("new")),
	})
	if err != nil {
		return err
	}
	return outputFor(c).message(msg, "password changed")
}

func resetRequest(c *cli.Context) error {
	msg, err := appFrom(c).Auth.RequestPasswordReset(c.Context, c.String("email"))
	if err != nil {
		return err
	}
	return outputFor(c).message(msg, "reset code sent")
}

func resetValidate(c *cli.Context) error {
	msg, err := appFrom(c).Auth.ValidateResetCode(c.Context, c.String("email"), c.String("code"))
	if err != nil {
		return err
	}
	return outputFor(c).message(msg, "code valid")
}

func resetConfirm(c *cli.Context) error {
	msg, err := appFrom(c).Auth.ConfirmPasswordReset(c.Context, services.PasswordReset{
		Email:                c.String("email"),
		Code:                 c.String("code"),
		Password:             c.String("password"),
		PasswordConfirmation: orDefault(c.String("confirm"), c.String("password")),
	})
	if err != nil {
		return err
	}
	return outputFor(c).message(msg, "password reset")
}

func listCategories(c *cli.Context) error {
	page, err := appFrom(c).Categories.List(c.Context, c.Int("page"))
	if err != nil {
		return err
	}
	return outputFor(c).categories(page)
}

func createCategory(c *cli.Context) error {
	kind, err := core.ParseEntryType(c.String("type"))
	if err != nil {
		return err
	}
	in := services.CategoryInput{Name: c.String("name"), Type: kind}
	if c.IsSet("group") {
		in.Group = ptr(c.Int64("group"))
	}
	created, err := appFrom(c).Categories.Create(c.Context, in)
	if err != nil {
		return err
	}
	return outputFor(c).category(created)
}

func updateCategory(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}
	var in services.CategoryPatch
	if c.IsSet("name") {
		in.Name = ptr(c.String("name"))
	}
	if c.IsSet("type") {
		kind, err := core.ParseEntryType(c.String("type"))
		if err != nil {
			return err
		}
		in.Type = &kind
	}
	updated, err := appFrom(c).Categories.Update(c.Context, id, in)
	if err != nil {
		return err
	}
	return outputFor(c).category(updated)
}

func deleteCategory(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}
	msg, err := appFrom(c).Categories.Delete(c.Context, id)
	if err != nil {
		return err
	}
	return outputFor(c).message(msg, "category deleted")
}

func categoryStats(c *cli.Context) error {
	rows, err := appFrom(c).Categories.Stats(c.Context)
	if err != nil {
		return err
	}
	return outputFor(c).categoryStats(rows)
}

func categoryTransactions(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}
	ct, err := appFrom(c).Categories.Transactions(c.Context, id)
	if err != nil {
		return err
	}
	return outputFor(c).categoryTransactions(ct)
}

func listTransactions(c *cli.Context) error {
	page, err := appFrom(c).Transactions.List(c.Context, c.Int("page"))
	if err != nil {
		return err
	}
	return outputFor(c).transactions(page)
}

func getTransaction(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}
	tx, err := appFrom(c).Transactions.Get(c.Context, id)
	if err != nil {
		return err
	}
	return outputFor(c).transaction(tx)
}

func createTransaction(c *cli.Context) error {
	amount, err := core.ParseAmount(c.String("amount"))
	if err != nil {
		return err
	}
	kind, err := core.ParseEntryType(c.String("type"))
	if err != nil {
		return err
	}
	date := core.Date{Time: time.Now().UTC().Truncate(24 * time.Hour)}
	if c.IsSet("date") {
		if date, err = core.ParseDate(c.String("date")); err != nil {
			return err
		}
	}
	proof, err := attachment(c)
	if err != nil {
		return err
	}

	tx, err := appFrom(c).Transactions.Create(c.Context, services.TransactionInput{
		Amount:      amount,
		Date:        date,
		Description: c.String("description"),
		Type:        kind,
		Category:    c.Int64("category"),
		Proof:       proof,
	})
	if err != nil {
		return err
	}
	return outputFor(c).transaction(tx)
}

func updateTransaction(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}

	var in services.TransactionPatch
	if c.IsSet("amount") {
		amount, err := core.ParseAmount(c.String("amount"))
		if err != nil {
			return err
		}
		in.Amount = &amount
	}
	if c.IsSet("date") {
		date, err := core.ParseDate(c.String("date"))
		if err != nil {
			return err
		}
		in.Date = &date
	}
	if c.IsSet("type") {
		kind, err := core.ParseEntryType(c.String("type"))
		if err != nil {
			return err
		}
		in.Type = &kind
	}
	if c.IsSet("category") {
		in.Category = ptr(c.Int64("category"))
	}
	if c.IsSet("description") {
		in.Description = ptr(c.String("description"))
	}
	if in.Proof, err = attachment(c); err != nil {
		return err
	}

	tx, err := appFrom(c).Transactions.Update(c.Context, id, in)
	if err != nil {
		return err
	}
	return outputFor(c).transaction(tx)
}

func deleteTransaction(c *cli.Context) error {
	id, err := idArg(c)
	if err != nil {
		return err
	}
	if err := appFrom(c).Transactions.Delete(c.Context, id); err != nil {
		return err
	}
	return outputFor(c).message(core.Message{}, fmt.Sprintf("transaction %d deleted", id))
}

func transactionStats(c *cli.Context) error {
	st, err := appFrom(c).Transactions.Stats(c.Context)
	if err != nil {
		return err
	}
	return outputFor(c).transactionStats(st)
}

func transactionsByCategory(c *cli.Context) error {
	rows, err := appFrom(c).Transactions.ByCategory(c.Context)
	if err != nil {
		return err
	}
	return outputFor(c).byCategory(rows)
}

// events prints every session event until SIGINT or SIGTERM.
func events(c *cli.Context) error {
	app := appFrom(c)
	if app.Events == nil {
		return cli.Exit("session events need AMQP_URL pointing at a reachable broker", exitFailure)
	}

	ctx, cancel := appcli.SignalContext(c.Context, app.Logger.Logger)
	defer cancel()

	out := outputFor(c)
	err := app.Events.ConsumeSessionEvents(ctx, func(_ context.Context, msg *amqp.SessionEventMessage) error {
		return out.event(msg)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func idArg(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	if raw == "" {
		return 0, cli.Exit("missing ID argument", exitFailure)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid ID %q", raw), exitFailure)
	}
	return id, nil
}

func attachment(c *cli.Context) (*services.Attachment, error) {
	path := c.Path("proof")
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}
	return &services.Attachment{Filename: filepath.Base(path), Content: content}, nil
}

func ptr[T any](v T) *T { return &v }

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
