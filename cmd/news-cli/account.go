package main

import (
	"github.com/urfave/cli/v2"
)

const envPassword = "NEWS_CLI_PASSWORD"

func (r *runner) accountCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "login",
			Usage: "Sign in and remember the session",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "username",
					Aliases:  []string{"u"},
					Usage:    "Account username",
					Required: true,
				},
				&cli.StringFlag{
					Name:    "password",
					Aliases: []string{"p"},
					Usage:   "Account password (\"-\" reads it from stdin)",
					EnvVars: []string{envPassword},
				},
			},
			Action: r.login,
		},
		{
			Name:  "register",
			Usage: "Create an account and sign in",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "username",
					Aliases:  []string{"u"},
					Usage:    "Account username",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "email",
					Aliases:  []string{"e"},
					Usage:    "Account email",
					Required: true,
				},
				&cli.StringFlag{
					Name:    "password",
					Aliases: []string{"p"},
					Usage:   "Account password (\"-\" reads it from stdin)",
					EnvVars: []string{envPassword},
				},
			},
			Action: r.register,
		},
		{
			Name:   "logout",
			Usage:  "Forget the stored session",
			Action: r.logout,
		},
		{
			Name:   "whoami",
			Usage:  "Show the signed-in user",
			Action: r.whoami,
		},
	}
}

func (r *runner) password(c *cli.Context) (string, error) {
	password, err := readSecret(c.String("password"), r.in)
	if err != nil {
		return "", cli.Exit(err.Error(), ExitGeneralError)
	}
	if password == "" {
		return "", cli.Exit("Password is required (--password, $"+envPassword+" or \"-\" for stdin)", ExitUsageError)
	}
	return password, nil
}

func (r *runner) login(c *cli.Context) error {
	password, err := r.password(c)
	if err != nil {
		return err
	}

	identity, err := r.session.Login(ctxOf(c), c.String("username"), password)
	if err != nil {
		return exitError(err)
	}
	return r.outputJSON(map[string]interface{}{
		"success": true,
		"user":    identity,
	})
}

func (r *runner) register(c *cli.Context) error {
	password, err := r.password(c)
	if err != nil {
		return err
	}

	identity, err := r.session.Register(ctxOf(c), c.String("username"), c.String("email"), password)
	if err != nil {
		return exitError(err)
	}
	return r.outputJSON(map[string]interface{}{
		"success": true,
		"user":    identity,
	})
}

func (r *runner) logout(c *cli.Context) error {
	if err := r.session.Logout(ctxOf(c)); err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	return r.outputJSON(map[string]interface{}{
		"success": true,
	})
}

func (r *runner) whoami(c *cli.Context) error {
	identity, err := r.session.Identity()
	if err != nil {
		return r.outputJSON(map[string]interface{}{
			"authenticated": false,
		})
	}

	if id, err := r.session.UserID(ctxOf(c)); err == nil {
		identity.ID = id
	} else {
		r.log.Debug("user id unavailable", "error", err)
	}
	return r.outputJSON(map[string]interface{}{
		"authenticated": true,
		"user":          identity,
	})
}
