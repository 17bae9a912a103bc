package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"guildmembers/internal/config"
	"guildmembers/internal/database"
	"guildmembers/internal/models"
	"guildmembers/internal/repository"
	"guildmembers/internal/security"
	"guildmembers/internal/service"
	"guildmembers/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("memberctl failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportOutput := exportCmd.String("output", "", "Output file path (default: export_YYYYMMDD_HHMMSS.json, - for stdout)")

	staffCmd := flag.NewFlagSet("create-staff", flag.ExitOnError)
	staffUsername := staffCmd.String("username", "", "Login name (required, not numeric)")
	staffPassword := staffCmd.String("password", "", "Password (read from stdin when omitted)")
	staffFirst := staffCmd.String("first-name", "", "First name")
	staffLast := staffCmd.String("last-name", "", "Last name")
	staffEmail := staffCmd.String("email", "", "Email address")

	passwordCmd := flag.NewFlagSet("set-password", flag.ExitOnError)
	passwordUsername := passwordCmd.String("username", "", "Staff login name (required)")
	passwordValue := passwordCmd.String("password", "", "New password (read from stdin when omitted)")

	siteCmd := flag.NewFlagSet("create-site", flag.ExitOnError)
	siteDomain := siteCmd.String("domain", "", "Site domain (required)")
	siteName := siteCmd.String("name", "", "Display name (default: the domain)")

	switch command {
	case "export":
		exportCmd.Parse(args)
	case "create-staff":
		staffCmd.Parse(args)
		if *staffUsername == "" {
			staffCmd.PrintDefaults()
			return fmt.Errorf("-username is required")
		}
	case "set-password":
		passwordCmd.Parse(args)
		if *passwordUsername == "" {
			passwordCmd.PrintDefaults()
			return fmt.Errorf("-username is required")
		}
	case "create-site":
		siteCmd.Parse(args)
		if *siteDomain == "" {
			siteCmd.PrintDefaults()
			return fmt.Errorf("-domain is required")
		}
	case "refresh", "sites", "staff":
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return err
	}

	switch command {
	case "export":
		return handleExport(ctx, service.NewBackupService(db), *exportOutput)
	case "refresh":
		return handleRefresh(ctx, db, cfg)
	case "create-staff":
		password := *staffPassword
		if password == "" {
			if password, err = readPassword(); err != nil {
				return err
			}
		}
		return handleCreateStaff(ctx, newAccountService(db, cfg), service.StaffParams{
			Username:  *staffUsername,
			Password:  password,
			FirstName: *staffFirst,
			LastName:  *staffLast,
			Email:     *staffEmail,
		})
	case "set-password":
		password := *passwordValue
		if password == "" {
			if password, err = readPassword(); err != nil {
				return err
			}
		}
		if err := newAccountService(db, cfg).SetStaffPassword(ctx, *passwordUsername, password); err != nil {
			return err
		}
		slog.Info("Password updated", "username", *passwordUsername)
		return nil
	case "staff":
		return handleListStaff(ctx, newAccountService(db, cfg))
	case "create-site":
		site := &models.Site{Domain: *siteDomain, Name: *siteName}
		if err := repository.NewSiteRepository(db).CreateSite(ctx, site); err != nil {
			return err
		}
		slog.Info("Site created", "id", site.ID, "domain", site.Domain)
		return nil
	case "sites":
		return handleListSites(ctx, db)
	}
	return nil
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string) error {
	if outputPath == "-" {
		return backupService.ExportToWriter(ctx, os.Stdout)
	}

	// Generate default filename if not provided
	if outputPath == "" {
		outputPath = fmt.Sprintf("export_%s.json", time.Now().Format("20060102_150405"))
	}

	// Ensure directory exists
	if dir := filepath.Dir(outputPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	slog.Info("Exporting database", "output", outputPath)
	if err := backupService.Export(ctx, outputPath); err != nil {
		return err
	}

	if info, err := os.Stat(outputPath); err == nil {
		slog.Info("Export complete", "size_mb", fmt.Sprintf("%.2f", float64(info.Size())/1024/1024))
	}
	return nil
}

func handleRefresh(ctx context.Context, db *database.DB, cfg *config.Config) error {
	members := service.NewMemberService(db, nil, nil, cfg.SiteID)
	changed, err := members.RefreshCurrentFlags(ctx)
	if err != nil {
		return err
	}
	slog.Info("Current flags refreshed", "changed", changed)
	return nil
}

func newAccountService(db *database.DB, cfg *config.Config) *service.AccountService {
	return service.NewAccountService(repository.NewUserRepository(db), security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL))
}

func handleCreateStaff(ctx context.Context, accounts *service.AccountService, params service.StaffParams) error {
	user, err := accounts.CreateStaff(ctx, params)
	if err != nil {
		return err
	}
	slog.Info("Staff account created", "id", user.ID, "username", user.Username)
	return nil
}

func handleListStaff(ctx context.Context, accounts *service.AccountService) error {
	staff, err := accounts.ListStaff(ctx)
	if err != nil {
		return err
	}
	for _, u := range staff {
		fmt.Printf("%d\t%s\t%s %s\t%s\n", u.ID, u.Username, u.FirstName, u.LastName, u.Email)
	}
	return nil
}

func handleListSites(ctx context.Context, db *database.DB) error {
	sites, err := repository.NewSiteRepository(db).ListSites(ctx)
	if err != nil {
		return err
	}
	for _, site := range sites {
		fmt.Printf("%d\t%s\t%s\n", site.ID, site.Domain, site.Name)
	}
	return nil
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printUsage() {
	fmt.Println("Guild membership operator tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  memberctl export [options]        Export members, memberships, payments and signups to JSON")
	fmt.Println("  memberctl refresh                 Recompute every member's current flag")
	fmt.Println("  memberctl create-staff [options]  Create a staff account")
	fmt.Println("  memberctl set-password [options]  Replace a staff account's password")
	fmt.Println("  memberctl staff                   List staff accounts")
	fmt.Println("  memberctl create-site [options]   Add a site")
	fmt.Println("  memberctl sites                   List sites")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: export_YYYYMMDD_HHMMSS.json, - for stdout)")
	fmt.Println()
	fmt.Println("Create-staff Options:")
	fmt.Println("  -username <name>  Login name (required)")
	fmt.Println("  -password <pw>    Password (read from stdin when omitted)")
	fmt.Println("  -first-name, -last-name, -email")
	fmt.Println()
	fmt.Println("Set-password Options:")
	fmt.Println("  -username <name>  Staff login name (required)")
	fmt.Println("  -password <pw>    New password (read from stdin when omitted)")
	fmt.Println()
	fmt.Println("Create-site Options:")
	fmt.Println("  -domain <domain>  Site domain (required)")
	fmt.Println("  -name <name>      Display name")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./guildmembers.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
