package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type companyRepository struct {
	acc accessor
}

func (r *companyRepository) Create(ctx context.Context, company domain.Company) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.companies[company.ID]; exists {
			return domain.NewConflict(domain.EntityCompany, "company already exists")
		}
		for _, existing := range d.companies {
			if strings.EqualFold(existing.Email, company.Email) {
				return domain.NewConflict(domain.EntityCompany, "company email is already in use")
			}
		}
		d.companies[company.ID] = company
		return nil
	})
}

func (r *companyRepository) Get(ctx context.Context, id string) (domain.Company, error) {
	if err := ctx.Err(); err != nil {
		return domain.Company{}, err
	}
	var company domain.Company
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.companies[id]
		if !ok {
			return domain.NewNotFound(domain.EntityCompany, id)
		}
		company = stored
		return nil
	})
	return company, err
}

func (r *companyRepository) List(ctx context.Context) ([]domain.Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Company
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.Company, 0, len(d.companies))
		for _, company := range d.companies {
			result = append(result, company)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r *companyRepository) Update(ctx context.Context, company domain.Company) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.companies[company.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityCompany, company.ID)
		}
		for id, existing := range d.companies {
			if id != company.ID && strings.EqualFold(existing.Email, company.Email) {
				return domain.NewConflict(domain.EntityCompany, "company email is already in use")
			}
		}
		company.CreatedAt = current.CreatedAt
		d.companies[company.ID] = company
		return nil
	})
}

// Delete удаляет заведение, если на него никто не ссылается.
func (r *companyRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.companies[id]; !ok {
			return domain.NewNotFound(domain.EntityCompany, id)
		}
		for _, p := range d.products {
			if p.CompanyID == id {
				return domain.NewConflict(domain.EntityCompany, "company still has products")
			}
		}
		for _, o := range d.orders {
			if o.CompanyID == id {
				return domain.NewConflict(domain.EntityCompany, "company still has orders")
			}
		}
		for _, u := range d.users {
			if u.CompanyID != nil && *u.CompanyID == id {
				return domain.NewConflict(domain.EntityCompany, "company still has users")
			}
		}
		for _, c := range d.categories {
			if c.CompanyID == id {
				return domain.NewConflict(domain.EntityCompany, "company still has categories")
			}
		}
		delete(d.companies, id)
		return nil
	})
}

type categoryRepository struct {
	acc accessor
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.categories[category.ID]; exists {
			return domain.NewConflict(domain.EntityCategory, "category already exists")
		}
		if _, ok := d.companies[category.CompanyID]; !ok {
			return domain.NewNotFound(domain.EntityCompany, category.CompanyID)
		}
		d.categories[category.ID] = category
		return nil
	})
}

func (r *categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return domain.Category{}, err
	}
	var category domain.Category
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.categories[id]
		if !ok {
			return domain.NewNotFound(domain.EntityCategory, id)
		}
		category = stored
		return nil
	})
	return category, err
}

func (r *categoryRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Category
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.Category, 0)
		for _, category := range d.categories {
			if companyID == "" || category.CompanyID == companyID {
				result = append(result, category)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r *categoryRepository) Update(ctx context.Context, category domain.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.categories[category.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityCategory, category.ID)
		}
		if _, ok := d.companies[category.CompanyID]; !ok {
			return domain.NewNotFound(domain.EntityCompany, category.CompanyID)
		}
		category.CreatedAt = current.CreatedAt
		d.categories[category.ID] = category
		return nil
	})
}

// Delete удаляет категорию; товары остаются без категории.
func (r *categoryRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.categories[id]; !ok {
			return domain.NewNotFound(domain.EntityCategory, id)
		}
		for pid, p := range d.products {
			if p.CategoryID != nil && *p.CategoryID == id {
				p.CategoryID = nil
				d.products[pid] = p
			}
		}
		delete(d.categories, id)
		return nil
	})
}

type productRepository struct {
	acc accessor
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.products[product.ID]; exists {
			return domain.NewConflict(domain.EntityProduct, "product already exists")
		}
		if err := checkProduct(d, product); err != nil {
			return err
		}
		d.products[product.ID] = product
		return nil
	})
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	var product domain.Product
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.products[id]
		if !ok {
			return domain.NewNotFound(domain.EntityProduct, id)
		}
		product = stored
		return nil
	})
	return product, err
}

func (r *productRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Product
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.Product, 0)
		for _, product := range d.products {
			if companyID == "" || product.CompanyID == companyID {
				result = append(result, product)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.products[product.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityProduct, product.ID)
		}
		if err := checkProduct(d, product); err != nil {
			return err
		}
		product.CreatedAt = current.CreatedAt
		d.products[product.ID] = product
		return nil
	})
}

// Delete удаляет товар, если он не входит ни в один заказ.
func (r *productRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.products[id]; !ok {
			return domain.NewNotFound(domain.EntityProduct, id)
		}
		for _, item := range d.items {
			if item.ProductID == id {
				return domain.NewConflict(domain.EntityProduct, "product is referenced by orders")
			}
		}
		delete(d.products, id)
		return nil
	})
}

func checkProduct(d *dataset, product domain.Product) error {
	if _, ok := d.companies[product.CompanyID]; !ok {
		return domain.NewNotFound(domain.EntityCompany, product.CompanyID)
	}
	if product.CategoryID != nil {
		if _, ok := d.categories[*product.CategoryID]; !ok {
			return domain.NewNotFound(domain.EntityCategory, *product.CategoryID)
		}
	}
	for _, existing := range d.products {
		if existing.ID != product.ID && existing.CompanyID == product.CompanyID && existing.Name == product.Name {
			return domain.NewConflict(domain.EntityProduct, "product name is already used in this company")
		}
	}
	return nil
}

type userRepository struct {
	acc accessor
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, exists := d.users[user.ID]; exists {
			return domain.NewConflict(domain.EntityUser, "user already exists")
		}
		if user.CompanyID != nil {
			if _, ok := d.companies[*user.CompanyID]; !ok {
				return domain.NewNotFound(domain.EntityCompany, *user.CompanyID)
			}
		}
		for _, existing := range d.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return domain.NewConflict(domain.EntityUser, "user email is already in use")
			}
		}
		d.users[user.ID] = user
		return nil
	})
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := r.acc.read(func(d *dataset) error {
		stored, ok := d.users[id]
		if !ok {
			return domain.NewNotFound(domain.EntityUser, id)
		}
		user = stored
		return nil
	})
	return user, err
}

func (r *userRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.User
	err := r.acc.read(func(d *dataset) error {
		result = make([]domain.User, 0)
		for _, user := range d.users {
			if companyID == "" || (user.CompanyID != nil && *user.CompanyID == companyID) {
				result = append(result, user)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

func (r *userRepository) Update(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		current, ok := d.users[user.ID]
		if !ok {
			return domain.NewNotFound(domain.EntityUser, user.ID)
		}
		if user.CompanyID != nil {
			if _, ok := d.companies[*user.CompanyID]; !ok {
				return domain.NewNotFound(domain.EntityCompany, *user.CompanyID)
			}
		}
		for id, existing := range d.users {
			if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
				return domain.NewConflict(domain.EntityUser, "user email is already in use")
			}
		}
		user.CreatedAt = current.CreatedAt
		d.users[user.ID] = user
		return nil
	})
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.acc.write(func(d *dataset) error {
		if _, ok := d.users[id]; !ok {
			return domain.NewNotFound(domain.EntityUser, id)
		}
		for _, o := range d.orders {
			if o.UserID == id {
				return domain.NewConflict(domain.EntityUser, "user still has orders")
			}
		}
		delete(d.users, id)
		return nil
	})
}

var (
	_ domain.CompanyRepository  = (*companyRepository)(nil)
	_ domain.CategoryRepository = (*categoryRepository)(nil)
	_ domain.ProductRepository  = (*productRepository)(nil)
	_ domain.UserRepository     = (*userRepository)(nil)
)
