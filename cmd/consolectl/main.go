package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/app"
	"github.com/saudemunicipal/console/internal/config"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/territory"
)

var errUsage = errors.New("uso inválido")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).Level(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config inválida")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível iniciar")
	}
	defer a.Close()

	ctx := context.Background()
	if err := execute(ctx, a, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		a.Close()
		log.Fatal().Err(err).Msgf("%s falhou", os.Args[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "consolectl")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  consolectl login --identifier email-ou-cpf [--password senha]   (ou CONSOLE_PASSWORD)")
	fmt.Fprintln(os.Stderr, "  consolectl logout")
	fmt.Fprintln(os.Stderr, "  consolectl whoami")
	fmt.Fprintln(os.Stderr, "  consolectl can doctor:create")
	fmt.Fprintln(os.Stderr, "  consolectl scope --city-hall ID [--health-unit ID]")
}

// execute roda um subcomando contra a sessão persistida.
func execute(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "login":
		return runLogin(ctx, a, args, out)
	case "logout":
		a.Sessions.Logout(ctx)
		fmt.Fprintln(out, "sessão encerrada")
		return nil
	case "whoami":
		return runWhoami(ctx, a, out)
	case "can":
		return runCan(ctx, a, args, out)
	case "scope":
		return runScope(ctx, a, args, out)
	default:
		return errUsage
	}
}

func runLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		identifier = fs.String("identifier", "", "e-mail ou CPF")
		password   = fs.String("password", "", "senha (padrão: CONSOLE_PASSWORD)")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *password == "" {
		*password = os.Getenv("CONSOLE_PASSWORD")
	}

	if _, err := a.Sessions.Login(ctx, *identifier, *password); err != nil {
		return err
	}
	return printJSON(out, a.Sessions.Snapshot())
}

func runWhoami(ctx context.Context, a *app.App, out io.Writer) error {
	snap := a.Sessions.InitFromStorage(ctx)
	if a.Sessions.ConsumeExpiredNotice() {
		fmt.Fprintln(out, "sessão expirada, faça login novamente")
		return nil
	}
	if !snap.Authenticated() {
		fmt.Fprintln(out, "nenhuma sessão ativa")
		return nil
	}
	return printJSON(out, snap)
}

func runCan(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	a.Sessions.InitFromStorage(ctx)
	action := strings.TrimSpace(args[0])
	if a.Sessions.Can(action) {
		fmt.Fprintf(out, "%s: permitido\n", action)
	} else {
		fmt.Fprintf(out, "%s: negado\n", action)
	}
	return nil
}

func runScope(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scope", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		cityHall   = fs.String("city-hall", "", "prefeitura selecionada")
		healthUnit = fs.String("health-unit", "", "unidade de saúde selecionada")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	a.Sessions.InitFromStorage(ctx)
	user, ok := a.Sessions.User()
	if !ok {
		return errors.New("nenhuma sessão ativa")
	}

	sel := territory.Selection{CityHallID: strings.TrimSpace(*cityHall), HealthUnitID: strings.TrimSpace(*healthUnit)}
	if sel.CityHallID == "" && sel.HealthUnitID == "" {
		sel = territory.DefaultSelection(user)
	}

	lookup := sel.CityHallID
	if user.Role != rbac.RoleMaster {
		lookup = user.CityID
	}
	catalog, catErr := territory.LoadCatalog(ctx, a.Catalogs, lookup)

	result := struct {
		Selection territory.Selection `json:"selection"`
		Options   territory.Options   `json:"options"`
		Valid     bool                `json:"valid"`
		Error     string              `json:"error,omitempty"`
		Notice    string              `json:"notice,omitempty"`
	}{
		Selection: sel,
		Options:   territory.OptionsFor(user.Role, user.CityID, sel, catalog),
	}
	if catErr != nil {
		result.Notice = catErr.Error()
	}
	if err := territory.ValidateFor(user.Role, user.CityID, sel, catalog); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}
	return printJSON(out, result)
}

func printJSON(out io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}
