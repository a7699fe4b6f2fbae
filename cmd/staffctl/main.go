package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"telegram_loyalty_bot/internal/config"
	"telegram_loyalty_bot/internal/loyalty"
	"telegram_loyalty_bot/internal/migrate"
	"telegram_loyalty_bot/internal/storage/models"
	"telegram_loyalty_bot/internal/validation"
	"telegram_loyalty_bot/pkg/logger"
)

const usage = `usage: staffctl <command> [flags]

commands:
  add -id <telegram_id> -name <name> [-position <position>]
  list
  deactivate -id <telegram_id>
  activate -id <telegram_id>
  rename -id <telegram_id> -name <name> [-position <position>]
  regen -id <telegram_id>
  delete -id <telegram_id>
  qr [-dir <path>]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	idFlag := fs.String("id", "", "Telegram ID сотрудника")
	name := fs.String("name", "", "имя сотрудника")
	position := fs.String("position", "", "должность")
	dir := fs.String("dir", "", "каталог для QR (по умолчанию QR_DIR)")
	logLevel := fs.String("log-level", "warn", "уровень логирования")
	_ = fs.Parse(os.Args[2:])

	log := logger.New(logger.ParseLevel(*logLevel))
	defer log.Sync()

	cfg, err := config.LoadForTools()
	if err != nil {
		log.Fatal("Failed to load config", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := migrate.OpenConfigured(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open storage", logger.Error(err))
	}
	defer store.Close()

	svc := loyalty.NewService(store, nil, loyalty.Config{
		Discount:    cfg.Loyalty.CouponDiscount,
		TTL:         cfg.Loyalty.CouponTTL,
		AdminIDs:    cfg.Telegram.AdminIDs,
		BotUsername: cfg.Telegram.BotUsername,
		QRDir:       cfg.Loyalty.QRDir,
	}, log)

	if err := run(ctx, svc, command, *idFlag, *name, *position, *dir); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *loyalty.Service, command, idArg, name, position, dir string) error {
	switch command {
	case "list":
		list, err := svc.ListStaff(ctx)
		if err != nil {
			return err
		}
		printStaff(svc, list)
		return nil
	case "qr":
		paths, err := svc.WriteStaffQR(ctx, dir)
		for _, p := range paths {
			fmt.Println(p)
		}
		return err
	}

	id, err := validation.ValidateTelegramID(idArg)
	if err != nil {
		return err
	}

	var staff *models.Staff
	switch command {
	case "add":
		if err := validation.ValidateStaffName(name); err != nil {
			return err
		}
		staff, err = svc.AddStaff(ctx, id, name, position)
	case "deactivate":
		staff, err = svc.SetStaffActive(ctx, id, false)
	case "activate":
		staff, err = svc.SetStaffActive(ctx, id, true)
	case "rename":
		if err := validation.ValidateStaffName(name); err != nil {
			return err
		}
		staff, err = svc.RenameStaff(ctx, id, name, position)
	case "regen":
		staff, err = svc.RegenerateStaffCode(ctx, id)
	case "delete":
		if err := svc.DeleteStaff(ctx, id); err != nil {
			return err
		}
		fmt.Println("deleted", id)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	if err != nil {
		return err
	}

	printStaff(svc, []*models.Staff{staff})
	return nil
}

func printStaff(svc *loyalty.Service, list []*models.Staff) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TELEGRAM_ID\tNAME\tPOSITION\tCODE\tACTIVE\tLINK")
	withLinks := svc.LinksReady() == nil
	for _, s := range list {
		link := "-"
		if withLinks {
			link = svc.StaffLink(s)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			strconv.FormatInt(s.TelegramID, 10), s.Name, s.Position, s.Code, s.Active, link)
	}
	w.Flush()
}
