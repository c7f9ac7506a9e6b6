package main

import (
	"encoding/json"
	"fmt"
	"io"

	"dispatchconsole/internal/config"
	"dispatchconsole/internal/database"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/repository"
	"dispatchconsole/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "seqadmin",
	Short:         "Sequence and operator administration for the dispatch console",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// services is the subset of the API's service graph the CLI needs.
type services struct {
	db        *gorm.DB
	sequences service.SequenceService
	users     service.UserService
	roles     service.RoleService
}

// openServices loads configuration the same way the API does and wires the services.
func openServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, "console"); err != nil {
		return nil, err
	}
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}

	tx := repository.NewTransactionManager(db)
	roleRepo := repository.NewRoleRepository(db)
	return &services{
		db: db,
		sequences: service.NewSequenceService(
			repository.NewSequenceConfigRepository(db),
			repository.NewCategoryRepository(db),
			repository.NewMachineRepository(db),
			repository.NewAuditRepository(db),
			tx,
		),
		users: service.NewUserService(repository.NewUserRepository(db), roleRepo, tx, cfg.Auth.JWTSecret),
		roles: service.NewRoleService(roleRepo),
	}, nil
}

func (s *services) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = logger.Sync()
}

// writeJSON prints v indented; used when --json is set.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
