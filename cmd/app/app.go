package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridwatt/wattmarket/internal/api"
	"github.com/gridwatt/wattmarket/internal/config"
	"github.com/gridwatt/wattmarket/internal/db"
	"github.com/gridwatt/wattmarket/internal/logger"
	"github.com/gridwatt/wattmarket/internal/repository"
	"github.com/gridwatt/wattmarket/internal/repository/dao"
	"github.com/gridwatt/wattmarket/internal/service"
)

func Start() error {
	conf, err := config.Load("./cmd/app/config.yml")
	if err != nil {
		return fmt.Errorf("failed to initialize config -> %w", err)
	}

	if err = logger.Init(conf.API.Environment); err != nil {
		return fmt.Errorf("failed to initialize logger -> %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	var postgresDB *gorm.DB
	if dbURL != "" {
		postgresDB, err = db.OpenPostgresWithURL(dbURL)
	} else {
		postgresDB, err = db.OpenPostgres(conf.Postgres)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database -> %w", err)
	}

	if err = seedAdmin(postgresDB, conf.Admin); err != nil {
		return fmt.Errorf("failed to seed admin account -> %w", err)
	}

	s := api.NewServer(conf, postgresDB)

	addr := ":" + s.Config.API.Port
	zap.L().Info(fmt.Sprintf("starting server at %v", addr))
	if err = s.Router.Run(addr); err != nil {
		return fmt.Errorf("failed to start the server -> %w", err)
	}

	return nil
}

func seedAdmin(postgresDB *gorm.DB, conf *config.AdminConfig) error {
	if conf == nil || conf.Email == "" {
		zap.L().Warn("no admin account configured, skipping seed")

		return nil
	}

	repo := repository.NewUserRepository(dao.NewUserDAO(postgresDB), dao.NewRoleDAO(postgresDB))
	roles := repository.NewRoleRepository(dao.NewRoleDAO(postgresDB))

	admin, err := service.EnsureAdmin(context.Background(), repo, roles, conf.Email, conf.Password, conf.Name)
	if err != nil {
		return err
	}

	zap.L().Info("admin account ready", zap.Uint("user_id", admin.ID))

	return nil
}
