package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type companyRepository struct {
	db dbtx
}

func (r *companyRepository) Create(ctx context.Context, company domain.Company) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, email, phone, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, company.ID, company.Name, company.Email, company.Phone, company.Address, company.CreatedAt, company.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityCompany); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (r *companyRepository) Get(ctx context.Context, id string) (domain.Company, error) {
	company, err := scanCompany(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM companies WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Company{}, domain.NewNotFound(domain.EntityCompany, id)
		}
		return domain.Company{}, fmt.Errorf("select company: %w", err)
	}
	return company, nil
}

func (r *companyRepository) List(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM companies ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Company, 0)
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		result = append(result, company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return result, nil
}

func (r *companyRepository) Update(ctx context.Context, company domain.Company) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE companies
		SET name = $1, email = $2, phone = $3, address = $4, updated_at = $5
		WHERE id = $6
	`, company.Name, company.Email, company.Phone, company.Address, company.UpdatedAt, company.ID)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityCompany); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update company: %w", err)
	}
	return expectAffected(res, domain.EntityCompany, company.ID)
}

func (r *companyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		if mapped := translateDeleteError(err, domain.EntityCompany, "company is still referenced"); mapped != nil {
			return mapped
		}
		return fmt.Errorf("delete company: %w", err)
	}
	return expectAffected(res, domain.EntityCompany, id)
}

func scanCompany(row rowScanner) (domain.Company, error) {
	var (
		company domain.Company
		phone   sql.NullString
	)
	if err := row.Scan(&company.ID, &company.Name, &company.Email, &phone, &company.Address, &company.CreatedAt, &company.UpdatedAt); err != nil {
		return domain.Company{}, err
	}
	company.Phone = stringPtr(phone)
	return company, nil
}

type categoryRepository struct {
	db dbtx
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, company_id, name, icon, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, category.ID, category.CompanyID, category.Name, category.Icon, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityCategory); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	category, err := scanCategory(r.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, icon, created_at, updated_at
		FROM categories WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.NewNotFound(domain.EntityCategory, id)
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return category, nil
}

func (r *categoryRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, icon, created_at, updated_at
		FROM categories
		WHERE $1 = '' OR company_id = $1
		ORDER BY name, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return result, nil
}

func (r *categoryRepository) Update(ctx context.Context, category domain.Category) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories
		SET company_id = $1, name = $2, icon = $3, updated_at = $4
		WHERE id = $5
	`, category.CompanyID, category.Name, category.Icon, category.UpdatedAt, category.ID)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityCategory); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update category: %w", err)
	}
	return expectAffected(res, domain.EntityCategory, category.ID)
}

// Delete удаляет категорию; ON DELETE SET NULL отвязывает товары.
func (r *categoryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return expectAffected(res, domain.EntityCategory, id)
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var (
		category domain.Category
		icon     sql.NullString
	)
	if err := row.Scan(&category.ID, &category.CompanyID, &category.Name, &icon, &category.CreatedAt, &category.UpdatedAt); err != nil {
		return domain.Category{}, err
	}
	category.Icon = stringPtr(icon)
	return category, nil
}

const productColumns = `id, company_id, category_id, name, description, price, image_url, is_available, created_at, updated_at`

type productRepository struct {
	db dbtx
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		product.ID, product.CompanyID, product.CategoryID, product.Name, product.Description,
		product.Price, product.ImageURL, product.IsAvailable, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityProduct); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.NewNotFound(domain.EntityProduct, id)
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR company_id = $1
		ORDER BY name, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET company_id = $1,
		    category_id = $2,
		    name = $3,
		    description = $4,
		    price = $5,
		    image_url = $6,
		    is_available = $7,
		    updated_at = $8
		WHERE id = $9
	`,
		product.CompanyID, product.CategoryID, product.Name, product.Description,
		product.Price, product.ImageURL, product.IsAvailable, product.UpdatedAt, product.ID,
	)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityProduct); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.EntityProduct, product.ID)
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if mapped := translateDeleteError(err, domain.EntityProduct, "product is referenced by orders"); mapped != nil {
			return mapped
		}
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, domain.EntityProduct, id)
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product  domain.Product
		category sql.NullString
		imageURL sql.NullString
	)
	if err := row.Scan(
		&product.ID, &product.CompanyID, &category, &product.Name, &product.Description,
		&product.Price, &imageURL, &product.IsAvailable, &product.CreatedAt, &product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	product.CategoryID = stringPtr(category)
	product.ImageURL = stringPtr(imageURL)
	return product, nil
}

type userRepository struct {
	db dbtx
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, company_id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, user.ID, user.CompanyID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityUser); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.NewNotFound(domain.EntityUser, id)
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (r *userRepository) ListByCompany(ctx context.Context, companyID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, email, password_hash, role, created_at, updated_at
		FROM users
		WHERE $1 = '' OR company_id = $1
		ORDER BY name, id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	result := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return result, nil
}

func (r *userRepository) Update(ctx context.Context, user domain.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET company_id = $1, name = $2, email = $3, password_hash = $4, role = $5, updated_at = $6
		WHERE id = $7
	`, user.CompanyID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.UpdatedAt, user.ID)
	if err != nil {
		if mapped := translateWriteError(err, domain.EntityUser); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update user: %w", err)
	}
	return expectAffected(res, domain.EntityUser, user.ID)
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if mapped := translateDeleteError(err, domain.EntityUser, "user still has orders"); mapped != nil {
			return mapped
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(res, domain.EntityUser, id)
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user      domain.User
		companyID sql.NullString
		role      string
	)
	if err := row.Scan(&user.ID, &companyID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	user.CompanyID = stringPtr(companyID)
	user.Role = domain.Role(role)
	return user, nil
}

var (
	_ domain.CompanyRepository  = (*companyRepository)(nil)
	_ domain.CategoryRepository = (*categoryRepository)(nil)
	_ domain.ProductRepository  = (*productRepository)(nil)
	_ domain.UserRepository     = (*userRepository)(nil)
)
