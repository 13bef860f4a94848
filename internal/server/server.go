package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/veciapp/fiado/internal/account"
	accountdomain "github.com/veciapp/fiado/internal/account/domain"
	"github.com/veciapp/fiado/internal/cache"
	"github.com/veciapp/fiado/internal/config"
	"github.com/veciapp/fiado/internal/creditgate"
	"github.com/veciapp/fiado/internal/invoice"
	invoicedomain "github.com/veciapp/fiado/internal/invoice/domain"
	"github.com/veciapp/fiado/internal/observability"
	obsmiddleware "github.com/veciapp/fiado/internal/observability/logger"
	obsmetrics "github.com/veciapp/fiado/internal/observability/metrics"
	obstracing "github.com/veciapp/fiado/internal/observability/tracing"
	"github.com/veciapp/fiado/internal/payment"
	paymentdomain "github.com/veciapp/fiado/internal/payment/domain"
	"github.com/veciapp/fiado/internal/providers/pdf"
	"github.com/veciapp/fiado/internal/relationship"
	relationshipdomain "github.com/veciapp/fiado/internal/relationship/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(cache.NewAccountViewCache),
	relationship.Module,
	invoice.Module,
	payment.Module,
	account.Module,
	creditgate.Module,
	pdf.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	relationshipSvc relationshipdomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	paymentRepo     paymentdomain.Repository
	accountSvc      accountdomain.Service
	creditGate      creditgate.Gate
	pdfProvider     pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	RelationshipSvc relationshipdomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	PaymentRepo     paymentdomain.Repository
	AccountSvc      accountdomain.Service
	CreditGate      creditgate.Gate
	PDFProvider     pdf.Provider
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		relationshipSvc: p.RelationshipSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		paymentRepo:     p.PaymentRepo,
		accountSvc:      p.AccountSvc,
		creditGate:      p.CreditGate,
		pdfProvider:     p.PDFProvider,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

// RegisterAPIRoutes mounts the store-scoped ledger API.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")
	store := api.Group("/stores/:store_id", StoreContext())

	store.POST("/clients/:client_id/invitation", s.InviteClient)
	store.POST("/clients/:client_id/invitation/accept", s.AcceptInvitation)
	store.POST("/clients/:client_id/invitation/reject", s.RejectInvitation)
	store.PUT("/clients/:client_id/credit", s.SetClientCredit)
	store.GET("/clients/:client_id", s.GetRelationship)
	store.GET("/clients", s.ListRelationships)

	store.POST("/clients/:client_id/invoices", s.CreateInvoice)
	store.GET("/clients/:client_id/invoices", s.ListInvoices)
	store.GET("/clients/:client_id/invoices/overdue", s.ListOverdueInvoices)
	store.POST("/invoices/:invoice_id/pay", s.PayInvoiceDirect)
	store.POST("/invoices/:invoice_id/settlements", s.SettleInvoice)
	store.GET("/invoices/:invoice_id/receipt", s.InvoiceReceipt)

	store.POST("/clients/:client_id/advances", s.RecordAdvance)
	store.POST("/clients/:client_id/receipts", s.RecordReceipt)
	store.GET("/clients/:client_id/payments", s.PaymentHistory)

	store.GET("/clients/:client_id/account", s.GetClientAccount)
	store.GET("/clients/:client_id/credit-check", s.CreditCheck)
}
