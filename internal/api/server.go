package api

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/gridwatt/wattmarket/docs"
	v1 "github.com/gridwatt/wattmarket/internal/api/handler/v1"
	"github.com/gridwatt/wattmarket/internal/api/middleware"
	"github.com/gridwatt/wattmarket/internal/config"
	"github.com/gridwatt/wattmarket/internal/repository"
	"github.com/gridwatt/wattmarket/internal/repository/dao"
	"github.com/gridwatt/wattmarket/internal/service"
)

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
}

func NewServer(conf *config.AppConfig, db *gorm.DB) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
	}

	s.MountMiddlewares()

	authHandler := s.initAuthHandler(db)
	userHandler := s.initUserHandler(db)
	marketplaceHandler := s.initMarketplaceHandler(db)
	s.MountHandlers(authHandler, userHandler, marketplaceHandler)

	return s
}

func (s *Server) initAuthHandler(db *gorm.DB) *v1.AuthHandler {
	repo := repository.NewUserRepository(dao.NewUserDAO(db), dao.NewRoleDAO(db))
	svc := service.NewAuthService(repo)
	handler := v1.NewAuthHandler(s.Config.API, svc)

	return handler
}

func (s *Server) initUserHandler(db *gorm.DB) *v1.UserHandler {
	repo := repository.NewUserRepository(dao.NewUserDAO(db), dao.NewRoleDAO(db))
	svc := service.NewUserService(repo)
	handler := v1.NewUserHandler(svc)

	return handler
}

func (s *Server) initMarketplaceHandler(db *gorm.DB) *v1.MarketplaceHandler {
	repo := repository.NewMarketplaceRepository(dao.NewTokenDAO(db), dao.NewSaleDAO(db), dao.NewEventDAO(db))
	roles := repository.NewRoleRepository(dao.NewRoleDAO(db))
	payments := repository.NewUserRepository(dao.NewUserDAO(db), dao.NewRoleDAO(db))
	tm := repository.NewTxManager(db)

	svc := service.NewMarketplaceService(repo, repo, roles, payments, tm)
	handler := v1.NewMarketplaceHandler(svc)

	return handler
}

func (s *Server) MountMiddlewares() {
	// Logger and Recovery are needed unless we use gin.Default().
	s.Router.Use(gin.Logger())
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(authHandler *v1.AuthHandler, userHandler *v1.UserHandler, marketplaceHandler *v1.MarketplaceHandler) {
	const basePath = "/api/v1"

	auth := s.Router.Group(basePath)
	{
		auth.POST("/auth/signup", authHandler.HandleSignup)
		auth.POST("/auth/login", authHandler.HandleLogin)
	}

	authenticated := s.Router.Group(basePath, middleware.NewAuthenticator(s.Config.API.JWTSigningKey).VerifyJWT())
	{
		authenticated.GET("/users/:userID", userHandler.HandleGetUser)
		authenticated.GET("/users/:userID/tokens", marketplaceHandler.HandleGetUserTokens)
		authenticated.GET("/wallet", userHandler.HandleGetWallet)
		authenticated.POST("/wallet/deposit", userHandler.HandleDeposit)

		authenticated.POST("/tokens", marketplaceHandler.HandleCreateToken)
		authenticated.GET("/tokens/:tokenID", marketplaceHandler.HandleGetToken)
		authenticated.GET("/tokens/:tokenID/validity", marketplaceHandler.HandleGetTokenValidity)
		authenticated.GET("/tokens/:tokenID/events", marketplaceHandler.HandleGetTokenEvents)
		authenticated.POST("/tokens/:tokenID/list", marketplaceHandler.HandleListToken)
		authenticated.POST("/tokens/:tokenID/withdraw", marketplaceHandler.HandleWithdrawToken)
		authenticated.POST("/tokens/:tokenID/buy", marketplaceHandler.HandleBuyToken)
		authenticated.POST("/tokens/:tokenID/burn", marketplaceHandler.HandleBurnToken)

		authenticated.POST("/roles/providers", marketplaceHandler.HandleAddProvider)
		authenticated.DELETE("/roles/providers/:userID", marketplaceHandler.HandleRevokeProvider)
		authenticated.POST("/roles/consumers/register", marketplaceHandler.HandleRegisterConsumer)
	}

	s.Router.GET("/", v1.HandleHealthcheck)

	// Setup Swagger UI.
	docs.SwaggerInfo.Host = s.Config.API.BaseURL
	docs.SwaggerInfo.BasePath = basePath
	docs.SwaggerInfo.Title = "WattMarket API"
	docs.SwaggerInfo.Description = "Marketplace for tokenized renewable energy."
	docs.SwaggerInfo.Version = "1.0"
	s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}
