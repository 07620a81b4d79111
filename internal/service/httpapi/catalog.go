package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/catalog"
	"github.com/vladislavdragonenkov/pos/internal/service/order"
)

type catalogHandler struct {
	service CatalogService
}

type companyRequest struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   *string `json:"phone"`
	Address string  `json:"address"`
}

type companyPatchRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type companyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type categoryRequest struct {
	CompanyID string  `json:"companyId"`
	Name      string  `json:"name"`
	Icon      *string `json:"icon"`
}

type categoryPatchRequest struct {
	Name *string `json:"name"`
	Icon *string `json:"icon"`
}

type categoryResponse struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId"`
	Name      string    `json:"name"`
	Icon      *string   `json:"icon"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// productRequest принимает цену и строкой ("10.00"), и числом.
type productRequest struct {
	CompanyID   string           `json:"companyId"`
	CategoryID  *string          `json:"categoryId"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"imageUrl"`
	IsAvailable *bool            `json:"isAvailable"`
}

type productPatchRequest struct {
	CategoryID  *string          `json:"categoryId"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"imageUrl"`
	IsAvailable *bool            `json:"isAvailable"`
}

type productResponse struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"companyId"`
	CategoryID  *string   `json:"categoryId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	ImageURL    *string   `json:"imageUrl"`
	IsAvailable bool      `json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type userRequest struct {
	CompanyID *string `json:"companyId"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      string  `json:"role"`
}

type userPatchRequest struct {
	CompanyID *string `json:"companyId"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	Role      *string `json:"role"`
}

// userResponse не содержит хеша пароля.
type userResponse struct {
	ID        string    `json:"id"`
	CompanyID *string   `json:"companyId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *catalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/companies", func(r chi.Router) {
		r.Post("/", h.createCompany)
		r.Get("/", h.listCompanies)
		r.Get("/{id}", h.getCompany)
		r.Patch("/{id}", h.updateCompany)
		r.Delete("/{id}", h.deleteCompany)
	})
	r.Route("/categories", func(r chi.Router) {
		r.Post("/", h.createCategory)
		r.Get("/", h.listCategories)
		r.Get("/{id}", h.getCategory)
		r.Patch("/{id}", h.updateCategory)
		r.Delete("/{id}", h.deleteCategory)
	})
	r.Get("/public/products", h.listAvailableProducts)
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.createUser)
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Patch("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

func (h *catalogHandler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	company, err := h.service.CreateCompany(r.Context(), catalog.CompanyInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCompanyResponse(company))
}

func (h *catalogHandler) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.service.ListCompanies(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]companyResponse, 0, len(companies))
	for _, company := range companies {
		resp = append(resp, newCompanyResponse(company))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *catalogHandler) getCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	company, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompanyResponse(company))
}

func (h *catalogHandler) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req companyPatchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	company, err := h.service.UpdateCompany(r.Context(), id, catalog.CompanyPatch(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompanyResponse(company))
}

func (h *catalogHandler) deleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCompany(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *catalogHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateUUID("companyId", req.CompanyID); err != nil {
		writeError(w, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), catalog.CategoryInput{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Icon:      req.Icon,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryResponse(category))
}

func (h *catalogHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFilter(w, r)
	if !ok {
		return
	}
	categories, err := h.service.ListCategories(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		resp = append(resp, newCategoryResponse(category))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *catalogHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryResponse(category))
}

func (h *catalogHandler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req categoryPatchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), id, catalog.CategoryPatch(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryResponse(category))
}

func (h *catalogHandler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *catalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateUUID("companyId", req.CompanyID); err != nil {
		writeError(w, err)
		return
	}
	if err := validateOptionalUUID("categoryId", req.CategoryID); err != nil {
		writeError(w, err)
		return
	}
	if req.Price == nil {
		writeError(w, domain.NewValidation("price", "is required"))
		return
	}
	categoryID := req.CategoryID
	if categoryID != nil && *categoryID == "" {
		categoryID = nil
	}
	product, err := h.service.CreateProduct(r.Context(), catalog.ProductInput{
		CompanyID:   req.CompanyID,
		CategoryID:  categoryID,
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductResponse(product))
}

func (h *catalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFilter(w, r)
	if !ok {
		return
	}
	products, err := h.service.ListProducts(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, product := range products {
		resp = append(resp, newProductResponse(product))
	}
	writeJSON(w, http.StatusOK, resp)
}

// listAvailableProducts - публичная витрина: только товары с isAvailable = true.
func (h *catalogHandler) listAvailableProducts(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFilter(w, r)
	if !ok {
		return
	}
	products, err := h.service.ListAvailableProducts(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, product := range products {
		resp = append(resp, newProductResponse(product))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *catalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *catalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productPatchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateOptionalUUID("categoryId", req.CategoryID); err != nil {
		writeError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, catalog.ProductPatch{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *catalogHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *catalogHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateOptionalUUID("companyId", req.CompanyID); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), catalog.UserInput{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (h *catalogHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyFilter(w, r)
	if !ok {
		return
	}
	users, err := h.service.ListUsers(r.Context(), companyID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, newUserResponse(user))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *catalogHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *catalogHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req userPatchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateOptionalUUID("companyId", req.CompanyID); err != nil {
		writeError(w, err)
		return
	}
	patch := catalog.UserPatch{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}
	user, err := h.service.UpdateUser(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *catalogHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validateUUID("id", id); err != nil {
		writeError(w, err)
		return "", false
	}
	return id, true
}

// companyFilter читает необязательный ?companyId=.
func companyFilter(w http.ResponseWriter, r *http.Request) (string, bool) {
	companyID := r.URL.Query().Get("companyId")
	if companyID == "" {
		return "", true
	}
	if err := validateUUID("companyId", companyID); err != nil {
		writeError(w, err)
		return "", false
	}
	return companyID, true
}

func newCompanyResponse(c domain.Company) companyResponse {
	return companyResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func newCategoryResponse(c domain.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		CompanyID: c.CompanyID,
		Name:      c.Name,
		Icon:      c.Icon,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		CompanyID:   p.CompanyID,
		CategoryID:  p.CategoryID,
		Name:        p.Name,
		Description: p.Description,
		Price:       order.FormatMoney(p.Price),
		ImageURL:    p.ImageURL,
		IsAvailable: p.IsAvailable,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		CompanyID: u.CompanyID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
