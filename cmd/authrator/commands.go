package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/fx"

	"authrator/internal/config"
	"authrator/internal/model"
	"authrator/internal/output"
	"authrator/internal/service"
	"authrator/internal/session"
)

// services holds what a one-shot command needs from the fx graph.
type services struct {
	fs         afero.Fs
	workspace  *service.Workspace
	dispatcher *service.Dispatcher
}

// buildServices builds the core graph with logs on stderr, keeping stdout
// for command output.
func buildServices(cli *config.CLI) (*services, error) {
	var s services
	app := fx.New(
		core(cli),
		fx.Provide(newLogger(os.Stderr)),
		fx.NopLogger,
		fx.Populate(&s.fs, &s.workspace, &s.dispatcher),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func newStdoutPrinter() *output.PrettyPrinter {
	return output.NewPrettyPrinter(output.PrettyPrinterConfig{
		Writer:      os.Stdout,
		EnableColor: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	})
}

type sendCmd struct {
	File    string `kong:"arg,optional,help='Request descriptor JSON file, or - for stdin.'"`
	APIID   string `kong:"name='api-id',help='Send a saved API from the workspace instead of a file.'"`
	Preview bool   `kong:"help='Print the wire request without sending it.'"`
}

func (cmd *sendCmd) Run(cli *config.CLI) error {
	s, err := buildServices(cli)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	desc, err := cmd.descriptor(ctx, s)
	if err != nil {
		return err
	}

	printer := newStdoutPrinter()
	if cmd.Preview {
		return printer.PrintWireRequest(s.dispatcher.Preview(desc))
	}
	return printer.PrintResponse(s.dispatcher.Send(ctx, "", desc))
}

func (cmd *sendCmd) descriptor(ctx context.Context, s *services) (model.Descriptor, error) {
	if cmd.APIID != "" {
		api, err := s.workspace.GetAPI(ctx, cmd.APIID)
		if err != nil {
			return model.Descriptor{}, errors.Wrapf(err, "loading api %s", cmd.APIID)
		}
		return api.Descriptor(), nil
	}

	var (
		data []byte
		err  error
	)
	switch cmd.File {
	case "", "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = afero.ReadFile(s.fs, cmd.File)
	}
	if err != nil {
		return model.Descriptor{}, errors.Wrap(err, "reading request descriptor")
	}

	var desc model.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return model.Descriptor{}, errors.Wrap(err, "parsing request descriptor")
	}
	return desc, nil
}

type loginCmd struct {
	Email    string `kong:"required,help='Account email.'"`
	Password string `kong:"help='Account password. Prompted for when omitted.',env='AUTHRATOR_PASSWORD'"`
	Signup   bool   `kong:"help='Create the account before logging in.'"`
}

func (cmd *loginCmd) Run(cli *config.CLI) error {
	s, err := buildServices(cli)
	if err != nil {
		return err
	}

	password := cmd.Password
	if password == "" {
		if password, err = askPassword(); err != nil {
			return err
		}
	}

	ctx := context.Background()
	var user model.User
	if cmd.Signup {
		user, err = s.workspace.Signup(ctx, cmd.Email, password)
	} else {
		user, err = s.workspace.Login(ctx, cmd.Email, password)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "logged in as %s\n", user.Email())
	return nil
}

type logoutCmd struct{}

func (logoutCmd) Run(cli *config.CLI) error {
	s, err := buildServices(cli)
	if err != nil {
		return err
	}

	if err := s.workspace.Logout(); err != nil {
		if errors.Is(err, session.ErrNotLoggedIn) {
			fmt.Fprintln(os.Stdout, "not logged in")
			return nil
		}
		return err
	}
	fmt.Fprintln(os.Stdout, "logged out")
	return nil
}
