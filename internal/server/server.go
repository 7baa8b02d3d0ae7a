package server

import (
	"context"
	"errors"
	"net/http"

	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/config"
	dispatchdomain "github.com/fixlane/fixlane/internal/dispatch/domain"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"github.com/fixlane/fixlane/internal/payment/webhook"
	"github.com/fixlane/fixlane/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	BookingSvc  bookingdomain.Service
	DispatchSvc dispatchdomain.Service
	OTPSvc      otpdomain.Service
	PaymentSvc  paymentdomain.Service
	WebhookSvc  *webhook.Service
	AuditSvc    auditdomain.Service
	Scheduler   *scheduler.Scheduler
}

type Server struct {
	engine      *gin.Engine
	log         *zap.Logger
	cfg         config.Config
	bookingSvc  bookingdomain.Service
	dispatchSvc dispatchdomain.Service
	otpSvc      otpdomain.Service
	paymentSvc  paymentdomain.Service
	webhookSvc  *webhook.Service
	auditSvc    auditdomain.Service
	scheduler   *scheduler.Scheduler
}

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))
	engine.Use(ErrorHandlingMiddleware())
	return engine
}

func NewServer(p Params, engine *gin.Engine) *Server {
	return &Server{
		engine:      engine,
		log:         p.Log.Named("http.server"),
		cfg:         p.Cfg,
		bookingSvc:  p.BookingSvc,
		dispatchSvc: p.DispatchSvc,
		otpSvc:      p.OTPSvc,
		paymentSvc:  p.PaymentSvc,
		webhookSvc:  p.WebhookSvc,
		auditSvc:    p.AuditSvc,
		scheduler:   p.Scheduler,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		bookings := v1.Group("/bookings")
		{
			bookings.GET("/:id", s.HandleGetBooking)
			bookings.GET("/:id/audit", s.HandleListBookingAudit)
			bookings.POST("/:id/dispatch", s.HandleDispatch)
			bookings.POST("/:id/transition", s.HandleTransition)
			bookings.POST("/:id/otp", s.HandleIssueOTP)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("", s.HandleCreatePayment)
			payments.GET("/:id", s.HandleGetPayment)
			payments.GET("/:id/events", s.HandleListPaymentEvents)
			payments.POST("/:id/hold", s.HandleHoldPayment)
			payments.POST("/:id/release", s.HandleReleasePayment)
			payments.POST("/:id/refund", s.HandleRefundPayment)
		}

		v1.POST("/webhooks/gateway", s.HandleGatewayWebhook)
	}

	jobs := s.engine.Group("/internal/jobs", s.SchedulerSecretRequired())
	{
		jobs.POST("/auto-release", s.HandleAutoReleaseJob)
		jobs.POST("/sla-refund", s.HandleSLARefundJob)
		jobs.POST("/inactivity-flag", s.HandleInactivityFlagJob)
	}
}

func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
