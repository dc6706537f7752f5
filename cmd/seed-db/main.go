// Command seed-db loads demo users, API keys, products and a coupon. It is
// safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/repository"
)

const (
	upsertUserSQL = `INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, user_id, key_hash, name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, key_hash = EXCLUDED.key_hash, active = TRUE`

	upsertProductSQL = `INSERT INTO products (id, sku, name, price, category, stock) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name, price = EXCLUDED.price,
			category = EXCLUDED.category, stock = EXCLUDED.stock`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_percent, valid_until) VALUES ($1, $2, $3, $4)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET discount_percent = EXCLUDED.discount_percent,
			valid_until = EXCLUDED.valid_until`
)

type seedUser struct {
	id, email, name string
	role            auth.Role
	keyEnv          string
}

var users = []seedUser{
	{id: "user-customer", email: "customer@example.com", name: "Demo Customer", role: auth.RoleCustomer, keyEnv: "SHOP_SEED_CUSTOMER_KEY"},
	{id: "user-admin", email: "admin@example.com", name: "Demo Admin", role: auth.RoleAdmin, keyEnv: "SHOP_SEED_ADMIN_KEY"},
}

type seedProduct struct {
	ID       string
	SKU      string
	Name     string
	Price    decimal.Decimal
	Category string
	Stock    int
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeyPepper string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, []byte(apiKeyPepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, pepper []byte) error {
	lg.Info("Running migrations")
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := seedUsers(ctx, lg, pool, pepper); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedProducts(ctx, lg, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedUsers(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, pepper []byte) error {
	for _, u := range users {
		if _, err := pool.Exec(ctx, upsertUserSQL, u.id, u.email, u.name, string(u.role)); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.id)
		}

		key := os.Getenv(u.keyEnv)
		if key == "" {
			lg.Warn("No API key configured, skipping", zap.String("user", u.id), zap.String("env", u.keyEnv))
			continue
		}
		if _, err := pool.Exec(ctx, upsertAPIKeySQL,
			u.id+"-key", u.id, handler.HashKey(pepper, key), "Seeded key for "+u.name,
		); err != nil {
			return errors.Wrapf(err, "upsert api key for %s", u.id)
		}
		lg.Info("Upserted user", zap.String("id", u.id), zap.String("role", string(u.role)))
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.SKU, p.Name, p.Price, p.Category, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func parseProducts(data []byte) ([]seedProduct, error) {
	var products []seedProduct
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p seedProduct
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				p.ID, err = d.Str()
			case "sku":
				p.SKU, err = d.Str()
			case "name":
				p.Name, err = d.Str()
			case "category":
				p.Category, err = d.Str()
			case "stock":
				p.Stock, err = d.Int()
			case "price":
				var n jx.Num
				if n, err = d.Num(); err == nil {
					p.Price, err = decimal.NewFromString(n.String())
				}
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if p.ID == "" || p.SKU == "" {
			return errors.New("product id and sku are required")
		}
		products = append(products, p)
		return nil
	})
	return products, err
}

func seedCoupons(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	validUntil := time.Now().AddDate(1, 0, 0)
	if _, err := pool.Exec(ctx, upsertCouponSQL,
		"coupon-demo10", "DEMO10", decimal.NewFromInt(10), validUntil,
	); err != nil {
		return errors.Wrap(err, "upsert coupon DEMO10")
	}
	lg.Info("Upserted coupon", zap.String("code", "DEMO10"), zap.Time("valid_until", validUntil))
	return nil
}
