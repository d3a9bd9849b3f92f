package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// StaffPasswordEnv is read when -password is not given, keeping the password
// out of shell history.
const StaffPasswordEnv = "LIBRARIAN_STAFF_PASSWORD"

// CreateStaffCommand creates a staff account, typically the first admin.
type CreateStaffCommand struct {
	Email        string
	Name         string
	Password     string
	Role         string
	DatabasePath string

	config *config.Config
}

func NewCreateStaffCommand(cfg *config.Config) *CreateStaffCommand {
	return &CreateStaffCommand{config: cfg}
}

func (cmd *CreateStaffCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("create-staff", flag.ContinueOnError)

	fs.StringVar(&cmd.Email, "email", "", "Staff email, used to log in (required)")
	fs.StringVar(&cmd.Name, "name", "", "Display name (required)")
	fs.StringVar(&cmd.Password, "password", "", "Password, at least 12 characters (defaults to $"+StaffPasswordEnv+")")
	fs.StringVar(&cmd.Role, "role", string(entities.StaffRoleLibrarian), "Role: admin or librarian")
	fs.StringVar(&cmd.DatabasePath, "db", cmd.config.Database.Path, "Path to the SQLite database (ignored for postgres)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s create-staff -email <email> -name <name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create a staff account. Database settings are read from the environment.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Create the first administrator:\n")
		fmt.Fprintf(os.Stderr, "  %s=secret123 %s create-staff -email admin@library.org -name Admin -role admin\n", StaffPasswordEnv, os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Email == "" {
		return errors.New("required flag -email not provided")
	}
	if cmd.Name == "" {
		return errors.New("required flag -name not provided")
	}
	if cmd.Password == "" {
		cmd.Password = os.Getenv(StaffPasswordEnv)
	}
	if cmd.Password == "" {
		return fmt.Errorf("password not provided: use -password or set %s", StaffPasswordEnv)
	}
	if !entities.StaffRole(cmd.Role).Valid() {
		return fmt.Errorf("invalid role %q: must be admin or librarian", cmd.Role)
	}
	return nil
}

func (cmd *CreateStaffCommand) Run() error {
	dbCfg := cmd.config.Database
	if cmd.DatabasePath != "" {
		dbCfg.Path = cmd.DatabasePath
	}

	db, err := database.NewQuietDatabase(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	service, err := auth.NewService(db.DB, cmd.config.Auth)
	if err != nil {
		return err
	}

	staff, err := service.CreateStaff(cmd.Email, cmd.Name, cmd.Password, entities.StaffRole(cmd.Role))
	if err != nil {
		return fmt.Errorf("failed to create staff account: %w", err)
	}

	fmt.Printf("Created %s account %s (id %d)\n", staff.Role, staff.Email, staff.ID)
	return nil
}
