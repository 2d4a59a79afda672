package router

import (
	"github.com/gamehub/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the HTTP handlers of the partner API
type Handlers struct {
	Auth           *handler.AuthHandler
	Partners       *handler.PartnerHandler
	EndUsers       *handler.EndUserHandler
	Transfers      *handler.TransferHandler
	Ledger         *handler.LedgerHandler
	Reconciliation *handler.ReconciliationHandler
	Balances       *handler.BalanceStreamHandler
	System         *handler.SystemHandler
}

// Guards are route specific middleware. Nil entries are skipped.
type Guards struct {
	// LoginLimit throttles credential attempts
	LoginLimit gin.HandlerFunc
	// SystemAdmin refuses every actor but a system admin
	SystemAdmin gin.HandlerFunc
}

func chain(guard gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if guard == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{guard, h}
}

// APIGroups declares every versioned route group
func APIGroups(h Handlers, g Guards) []*DomainGroup {
	authRoutes := NewDomainGroup("auth", "/auth")
	authRoutes.POST("/login", chain(g.LoginLimit, h.Auth.Login)...)
	authRoutes.POST("/refresh", chain(g.LoginLimit, h.Auth.RefreshToken)...)
	authRoutes.POST("/logout", h.Auth.Logout)
	authRoutes.GET("/me", h.Auth.Me)

	partnerRoutes := NewDomainGroup("partners", "/partners")
	partnerRoutes.POST("", h.Partners.Create)
	partnerRoutes.GET("", h.Partners.List)
	partnerRoutes.GET("/hierarchy-gap", h.Partners.HierarchyGap)
	partnerRoutes.GET("/:id", h.Partners.GetByID)
	partnerRoutes.PUT("/:id", h.Partners.Update)
	partnerRoutes.DELETE("/:id", h.Partners.Delete)
	partnerRoutes.PATCH("/:id/status", h.Partners.ChangeStatus)
	partnerRoutes.PUT("/:id/credentials", h.Partners.SetCredentials)
	partnerRoutes.GET("/:id/subtree", h.Partners.Subtree)

	userRoutes := NewDomainGroup("users", "/users")
	userRoutes.POST("", h.EndUsers.Create)
	userRoutes.GET("", h.EndUsers.List)
	userRoutes.GET("/:id", h.EndUsers.GetByID)
	userRoutes.PATCH("/:id/status", h.EndUsers.ChangeStatus)

	transferRoutes := NewDomainGroup("transfers", "/transfers")
	transferRoutes.POST("", h.Transfers.Execute)

	balanceRoutes := NewDomainGroup("balances", "/balances")
	balanceRoutes.GET("/stream", h.Balances.Stream)

	ledgerRoutes := NewDomainGroup("ledger", "/ledger")
	ledgerRoutes.GET("/entries", h.Ledger.ListEntries)
	ledgerRoutes.GET("/transfers/:id", h.Ledger.GetTransfer)
	ledgerRoutes.POST("/statements", h.Ledger.ExportStatement)

	reconciliationRoutes := NewDomainGroup("reconciliation", "/reconciliation")
	if g.SystemAdmin != nil {
		reconciliationRoutes.Use(g.SystemAdmin)
	}
	reconciliationRoutes.GET("/pending", h.Reconciliation.ListPending)
	reconciliationRoutes.GET("/pending/count", h.Reconciliation.PendingCount)
	reconciliationRoutes.POST("/:id/resolve", h.Reconciliation.Resolve)

	systemRoutes := NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", h.System.GetSystemInfo)

	return []*DomainGroup{
		authRoutes,
		partnerRoutes,
		userRoutes,
		transferRoutes,
		balanceRoutes,
		ledgerRoutes,
		reconciliationRoutes,
		systemRoutes,
	}
}

// Mount registers the API groups and the unversioned health endpoints on r
func Mount(r *Router, h Handlers, g Guards) {
	for _, group := range APIGroups(h, g) {
		r.Register(group)
	}
	r.Setup()
	r.engine.GET("/health", h.System.Health)
	r.engine.GET(r.BasePath()+"/health", h.System.Health)
}
