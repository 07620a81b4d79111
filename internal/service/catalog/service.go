// Package catalog управляет справочниками заведения: компании, категории, товары и сотрудники.
package catalog

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

const defaultBcryptCost = 12

// Цены хранятся как NUMERIC(12,2): два знака после запятой и не больше 9999999999.99.
const priceScale = 2

var maxPrice = decimal.New(1, 10)

// Service - CRUD над справочниками поверх domain.TxManager.
type Service struct {
	tx         domain.TxManager
	logger     *log.Entry
	now        func() time.Time
	bcryptCost int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBcryptCost задаёт стоимость хеширования паролей.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// New создаёт сервис каталога.
func New(tx domain.TxManager, opts ...Option) *Service {
	s := &Service{
		tx:         tx,
		logger:     log.New().WithField("component", "catalog"),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		bcryptCost: defaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompanyInput - поля новой компании.
type CompanyInput struct {
	Name    string
	Email   string
	Phone   *string
	Address string
}

// CategoryInput - поля новой категории.
type CategoryInput struct {
	CompanyID string
	Name      string
	Icon      *string
}

// ProductInput - поля нового товара. IsAvailable по умолчанию true.
type ProductInput struct {
	CompanyID   string
	CategoryID  *string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    *string
	IsAvailable *bool
}

// ProductPatch - частичное обновление товара.
type ProductPatch struct {
	CategoryID  *string
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	IsAvailable *bool
}

// UserInput - поля нового сотрудника. Password хранится только в виде bcrypt-хеша.
type UserInput struct {
	CompanyID *string
	Name      string
	Email     string
	Password  string
	Role      domain.Role
}

func (s *Service) CreateCompany(ctx context.Context, in CompanyInput) (domain.Company, error) {
	now := s.now()
	company := domain.Company{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Email:     normalizeEmail(in.Email),
		Phone:     in.Phone,
		Address:   strings.TrimSpace(in.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateCompany(company); err != nil {
		return domain.Company{}, err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Companies.Create(ctx, company)
	})
	if err != nil {
		return domain.Company{}, s.fail("create_company", company.ID, err)
	}
	return company, nil
}

func (s *Service) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var company domain.Company
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		company, err = repos.Companies.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Company{}, s.fail("get_company", id, err)
	}
	return company, nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	var companies []domain.Company
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		companies, err = repos.Companies.List(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail("list_companies", "", err)
	}
	return companies, nil
}

// DeleteCompany удаляет компанию. Conflict, если у неё остались товары, сотрудники или заказы.
func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Companies.Delete(ctx, id)
	})
	return s.fail("delete_company", id, err)
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (domain.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.CompanyID == "" {
		return domain.Category{}, domain.NewValidation("companyId", "is required")
	}
	if err := lengthBetween("name", in.Name, 3, 50); err != nil {
		return domain.Category{}, err
	}

	now := s.now()
	category := domain.Category{
		ID:        uuid.NewString(),
		CompanyID: in.CompanyID,
		Name:      in.Name,
		Icon:      in.Icon,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Categories.Create(ctx, category)
	})
	if err != nil {
		return domain.Category{}, s.fail("create_category", category.ID, err)
	}
	return category, nil
}

// ListCategories возвращает категории компании; пустой companyID означает все.
func (s *Service) ListCategories(ctx context.Context, companyID string) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		categories, err = repos.Categories.ListByCompany(ctx, companyID)
		return err
	})
	if err != nil {
		return nil, s.fail("list_categories", companyID, err)
	}
	return categories, nil
}

// DeleteCategory удаляет категорию, товары остаются без категории.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Categories.Delete(ctx, id)
	})
	return s.fail("delete_category", id, err)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		CompanyID:   in.CompanyID,
		CategoryID:  in.CategoryID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		ImageURL:    in.ImageURL,
		IsAvailable: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsAvailable != nil {
		product.IsAvailable = *in.IsAvailable
	}
	if product.CompanyID == "" {
		return domain.Product{}, domain.NewValidation("companyId", "is required")
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Products.Create(ctx, product)
	})
	if err != nil {
		return domain.Product{}, s.fail("create_product", product.ID, err)
	}
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var product domain.Product
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		product, err = repos.Products.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Product{}, s.fail("get_product", id, err)
	}
	return product, nil
}

// ListProducts возвращает товары компании; пустой companyID означает все.
func (s *Service) ListProducts(ctx context.Context, companyID string) ([]domain.Product, error) {
	var products []domain.Product
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		products, err = repos.Products.ListByCompany(ctx, companyID)
		return err
	})
	if err != nil {
		return nil, s.fail("list_products", companyID, err)
	}
	return products, nil
}

// UpdateProduct меняет товар. Цены в уже созданных позициях заказов не меняются.
func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	var product domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Products.Get(ctx, id)
		if err != nil {
			return err
		}
		patch.apply(&current)
		if err := validateProduct(current); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := repos.Products.Update(ctx, current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		return domain.Product{}, s.fail("update_product", id, err)
	}
	return product, nil
}

// DeleteProduct удаляет товар. Conflict, если он есть в позициях заказов.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Products.Delete(ctx, id)
	})
	return s.fail("delete_product", id, err)
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (domain.User, error) {
	now := s.now()
	user := domain.User{
		ID:        uuid.NewString(),
		CompanyID: optionalString(in.CompanyID),
		Name:      strings.TrimSpace(in.Name),
		Email:     normalizeEmail(in.Email),
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := validateUser(user); err != nil {
		return domain.User{}, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return domain.User{}, s.fail("create_user", "", err)
	}
	user.PasswordHash = hash

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Users.Create(ctx, user)
	})
	if err != nil {
		return domain.User{}, s.fail("create_user", user.ID, err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		user, err = repos.Users.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.User{}, s.fail("get_user", id, err)
	}
	return user, nil
}

// ListUsers возвращает сотрудников компании; пустой companyID означает всех.
func (s *Service) ListUsers(ctx context.Context, companyID string) ([]domain.User, error) {
	var users []domain.User
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		users, err = repos.Users.ListByCompany(ctx, companyID)
		return err
	})
	if err != nil {
		return nil, s.fail("list_users", companyID, err)
	}
	return users, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Users.Delete(ctx, id)
	})
	return s.fail("delete_user", id, err)
}

// CheckPassword сравнивает пароль с сохранённым хешем.
func CheckPassword(user domain.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// fail логирует инфраструктурные ошибки и прячет их причину за InternalError.
func (s *Service) fail(op, id string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := domain.Internal("catalog."+op, err)
	if domain.KindOf(wrapped) == domain.KindInternal {
		s.logger.WithError(err).WithFields(log.Fields{
			"op": op,
			"id": id,
		}).Error("catalog operation failed")
	}
	return wrapped
}

func (p ProductPatch) apply(product *domain.Product) {
	if p.CategoryID != nil {
		if *p.CategoryID == "" {
			product.CategoryID = nil
		} else {
			categoryID := *p.CategoryID
			product.CategoryID = &categoryID
		}
	}
	if p.Name != nil {
		product.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		product.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.ImageURL != nil {
		imageURL := *p.ImageURL
		product.ImageURL = &imageURL
	}
	if p.IsAvailable != nil {
		product.IsAvailable = *p.IsAvailable
	}
}

func validateProduct(p domain.Product) error {
	if err := lengthBetween("name", p.Name, 3, 50); err != nil {
		return err
	}
	if p.Description != "" {
		if err := lengthBetween("description", p.Description, 10, 255); err != nil {
			return err
		}
	}
	switch {
	case p.Price.IsNegative():
		return domain.NewValidation("price", "must not be negative")
	case !p.Price.Equal(p.Price.Truncate(priceScale)):
		return domain.NewValidation("price", "must have at most 2 decimal places")
	case p.Price.GreaterThanOrEqual(maxPrice):
		return domain.NewValidation("price", "is too large")
	}
	if p.ImageURL != nil && utf8.RuneCountInString(*p.ImageURL) > 255 {
		return domain.NewValidation("imageUrl", "must be at most 255 characters")
	}
	return nil
}

func lengthBetween(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		return domain.NewValidation(field, "is required")
	case n < minLen:
		return domain.NewValidation(field, "is too short")
	case n > maxLen:
		return domain.NewValidation(field, "is too long")
	}
	return nil
}

func validEmail(email string) error {
	if email == "" {
		return domain.NewValidation("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.NewValidation("email", "is not a valid address")
	}
	return nil
}
