package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"carbonwatch-backend/internal/logger"
	"carbonwatch-backend/internal/models"
	"carbonwatch-backend/internal/repository"
	"carbonwatch-backend/internal/services/patterns"
	"carbonwatch-backend/internal/services/reporting"
	"carbonwatch-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const maxLogoBytes = 5 << 20

type CompanyStore interface {
	Create(ctx context.Context, company *models.Company) error
	GetByID(ctx context.Context, id string) (*models.Company, error)
}

type Reporter interface {
	Dashboard(ctx context.Context, search string) (*reporting.Dashboard, error)
	Overview(ctx context.Context, companyID string) (*reporting.CompanyOverview, error)
	Patterns(ctx context.Context, companyID string) ([]patterns.Finding, error)
}

type CompanyHandler struct {
	companies CompanyStore
	reports   Reporter
	logos     storage.LogoStore
}

// NewCompanyHandler builds the handler. logos may be nil, in which case logo
// uploads are rejected.
func NewCompanyHandler(companies CompanyStore, reports Reporter, logos storage.LogoStore) *CompanyHandler {
	return &CompanyHandler{companies: companies, reports: reports, logos: logos}
}

type createCompanyRequest struct {
	CompanyID string `json:"company_id" form:"company_id" binding:"required,max=64"`
	Name      string `json:"nama_perusahaan" form:"nama_perusahaan" binding:"required"`
	Sector    string `json:"sector" form:"sector" binding:"required,oneof=Energy Manufacturing Forestry"`
	Address   string `json:"address" form:"address"`
	Contact   string `json:"contact" form:"contact"`
	TaxID     string `json:"npwp" form:"npwp"`
	Website   string `json:"website" form:"website"`
}

// List returns the dashboard: per-company totals plus overall totals.
func (h *CompanyHandler) List(c *gin.Context) {
	dashboard, err := h.reports.Dashboard(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// Create accepts JSON or a multipart form with an optional "logo" file.
func (h *CompanyHandler) Create(c *gin.Context) {
	var req createCompanyRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	company := &models.Company{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Sector:    req.Sector,
		Address:   req.Address,
		Contact:   req.Contact,
		TaxID:     req.TaxID,
		Website:   req.Website,
		CreatedAt: time.Now(),
	}

	file, err := c.FormFile("logo")
	switch {
	case err == nil:
		if h.logos == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "logo uploads are not configured"})
			return
		}
		if file.Size > maxLogoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "logo exceeds 5MB"})
			return
		}
		// Reject a taken identifier before anything lands in the bucket.
		if _, err := h.companies.GetByID(c.Request.Context(), company.CompanyID); err == nil {
			respondError(c, repository.ErrDuplicateID)
			return
		} else if !errors.Is(err, repository.ErrNotFound) {
			respondError(c, err)
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read logo"})
			return
		}
		defer f.Close()

		url, err := h.logos.UploadLogo(c.Request.Context(), company.CompanyID, file.Filename, file.Header.Get("Content-Type"), f)
		if err != nil {
			respondError(c, err)
			return
		}
		company.LogoURL = &url
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid logo upload"})
		return
	}

	if err := h.companies.Create(c.Request.Context(), company); err != nil {
		if company.LogoURL != nil {
			h.discardLogo(c, *company.LogoURL)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "company created", "company": company})
}

func (h *CompanyHandler) discardLogo(c *gin.Context, url string) {
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.logos.DeleteLogo(ctx, url); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("logo", url).Msg("failed to remove orphaned logo")
	}
}

// Get returns the company with its status distribution, monthly trend and
// anomaly findings.
func (h *CompanyHandler) Get(c *gin.Context) {
	overview, err := h.reports.Overview(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *CompanyHandler) Patterns(c *gin.Context) {
	findings, err := h.reports.Patterns(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"findings": findings})
}
