package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// CompanyPatch - частичное обновление компании. Пустой Phone очищает телефон.
type CompanyPatch struct {
	Name    *string
	Email   *string
	Phone   *string
	Address *string
}

// CategoryPatch - частичное обновление категории. Пустой Icon очищает иконку.
type CategoryPatch struct {
	Name *string
	Icon *string
}

// UserPatch - частичное обновление сотрудника. Пустой CompanyID отвязывает
// сотрудника от компании, Password заменяет хеш.
type UserPatch struct {
	CompanyID *string
	Name      *string
	Email     *string
	Password  *string
	Role      *domain.Role
}

func (s *Service) UpdateCompany(ctx context.Context, id string, patch CompanyPatch) (domain.Company, error) {
	var company domain.Company
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Companies.Get(ctx, id)
		if err != nil {
			return err
		}
		patch.apply(&current)
		if err := validateCompany(current); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := repos.Companies.Update(ctx, current); err != nil {
			return err
		}
		company = current
		return nil
	})
	if err != nil {
		return domain.Company{}, s.fail("update_company", id, err)
	}
	return company, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var category domain.Category
	err := s.tx.ReadOnly(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		category, err = repos.Categories.Get(ctx, id)
		return err
	})
	if err != nil {
		return domain.Category{}, s.fail("get_category", id, err)
	}
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (domain.Category, error) {
	var category domain.Category
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Categories.Get(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			current.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Icon != nil {
			current.Icon = optionalString(patch.Icon)
		}
		if err := lengthBetween("name", current.Name, 3, 50); err != nil {
			return err
		}
		current.UpdatedAt = s.now()
		if err := repos.Categories.Update(ctx, current); err != nil {
			return err
		}
		category = current
		return nil
	})
	if err != nil {
		return domain.Category{}, s.fail("update_category", id, err)
	}
	return category, nil
}

// ListAvailableProducts - витрина: только товары, доступные для заказа.
func (s *Service) ListAvailableProducts(ctx context.Context, companyID string) ([]domain.Product, error) {
	products, err := s.ListProducts(ctx, companyID)
	if err != nil {
		return nil, err
	}
	available := products[:0]
	for _, p := range products {
		if p.IsAvailable {
			available = append(available, p)
		}
	}
	return available, nil
}

// UpdateUser меняет сотрудника. Пароль проверяется и хешируется до транзакции.
func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (domain.User, error) {
	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = s.hashPassword(*patch.Password); err != nil {
			return domain.User{}, s.fail("update_user", id, err)
		}
	}

	var user domain.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Users.Get(ctx, id)
		if err != nil {
			return err
		}
		patch.apply(&current)
		if err := validateUser(current); err != nil {
			return err
		}
		if hash != "" {
			current.PasswordHash = hash
		}
		current.UpdatedAt = s.now()
		if err := repos.Users.Update(ctx, current); err != nil {
			return err
		}
		user = current
		return nil
	})
	if err != nil {
		return domain.User{}, s.fail("update_user", id, err)
	}
	return user, nil
}

func (p CompanyPatch) apply(company *domain.Company) {
	if p.Name != nil {
		company.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		company.Email = normalizeEmail(*p.Email)
	}
	if p.Phone != nil {
		company.Phone = optionalString(p.Phone)
	}
	if p.Address != nil {
		company.Address = strings.TrimSpace(*p.Address)
	}
}

func (p UserPatch) apply(user *domain.User) {
	if p.CompanyID != nil {
		user.CompanyID = optionalString(p.CompanyID)
	}
	if p.Name != nil {
		user.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		user.Email = normalizeEmail(*p.Email)
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
}

func validateCompany(c domain.Company) error {
	if err := lengthBetween("name", c.Name, 3, 100); err != nil {
		return err
	}
	if err := validEmail(c.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(c.Address) > 255 {
		return domain.NewValidation("address", "must be at most 255 characters")
	}
	return nil
}

// validateUser проверяет поля сотрудника. SUPER_ADMIN не привязан к компании,
// остальные роли обязаны быть привязаны.
func validateUser(u domain.User) error {
	if err := lengthBetween("name", u.Name, 3, 100); err != nil {
		return err
	}
	if err := validEmail(u.Email); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return domain.NewValidation("role", "unsupported value")
	}
	switch {
	case u.Role == domain.RoleSuperAdmin && u.CompanyID != nil:
		return domain.NewValidation("companyId", "must be empty for SUPER_ADMIN")
	case u.Role != domain.RoleSuperAdmin && u.CompanyID == nil:
		return domain.NewValidation("companyId", "is required for this role")
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	if err := lengthBetween("password", password, 8, 20); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// optionalString копирует непустое значение, пустая строка превращается в nil.
func optionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
