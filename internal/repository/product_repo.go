package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/shadecraft/channelsync/internal/models"
	"github.com/shadecraft/channelsync/internal/utils"
)

// ProductRepository handles read-only access to the catalog's product and
// variant tables. The sync engine never writes to these tables.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a product with its variants in catalog order.
func (r *ProductRepository) GetByID(id int) (*models.Product, error) {
	const q = `SELECT * FROM products WHERE id = $1 LIMIT 1`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var product models.Product
	if err := stmt.Get(&product, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.ErrProductNotFound
		}
		return nil, err
	}

	variants, err := r.getVariants(id)
	if err != nil {
		return nil, err
	}
	product.Variants = variants
	return &product, nil
}

// GetByIDs returns the requested products, each with variants attached.
// Missing ids are skipped rather than failing the whole batch.
func (r *ProductRepository) GetByIDs(ids []int) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM products WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var products []models.Product
	if err := r.db.Select(&products, query, args...); err != nil {
		return nil, err
	}

	for i := range products {
		variants, err := r.getVariants(products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

// ListActive returns all active products with variants, for full-catalog
// sync runs.
func (r *ProductRepository) ListActive() ([]models.Product, error) {
	const q = `SELECT * FROM products WHERE status = 'active' ORDER BY id`
	var products []models.Product
	if err := r.db.Select(&products, q); err != nil {
		return nil, err
	}
	for i := range products {
		variants, err := r.getVariants(products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

// getVariants returns a product's variants ordered by catalog position.
func (r *ProductRepository) getVariants(productID int) ([]models.Variant, error) {
	const q = `SELECT * FROM variants WHERE product_id = $1 ORDER BY position ASC, id ASC`
	stmt, err := r.db.Preparex(q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var variants []models.Variant
	if err := stmt.Select(&variants, productID); err != nil {
		return nil, err
	}
	return variants, nil
}
