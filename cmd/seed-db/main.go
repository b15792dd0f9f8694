package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orders-dashboard/internal/domain/client"
	"github.com/xenking/orders-dashboard/internal/domain/order"
	"github.com/xenking/orders-dashboard/internal/domain/product"
	"github.com/xenking/orders-dashboard/internal/domain/user"
	"github.com/xenking/orders-dashboard/internal/storage/postgres"
)

type seedFile struct {
	Categories []string      `json:"categories"`
	Products   []productJSON `json:"products"`
	Clients    []clientJSON  `json:"clients"`
	Orders     []orderJSON   `json:"orders"`
	Users      []userJSON    `json:"users"`
}

type productJSON struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Weight   decimal.Decimal `json:"weight"`
	Category string          `json:"category"`
}

type clientJSON struct {
	FullName string          `json:"fullName"`
	Phone    string          `json:"phone"`
	Address  string          `json:"address"`
	Cashback decimal.Decimal `json:"cashback"`
	Comment  *string         `json:"comment"`
}

type orderJSON struct {
	Client          string          `json:"client"`
	DeliveryMethod  string          `json:"deliveryMethod"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountReason  string          `json:"discountReason"`
	CashbackUsed    decimal.Decimal `json:"cashbackUsed"`
	Products        []struct {
		Product  string `json:"product"`
		Quantity int    `json:"quantity"`
	} `json:"products"`
}

type userJSON struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/dashboard.json", "path to seed JSON file")
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
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	clients := postgres.NewClientRepository(pool)

	categoryIDs, err := seedCategories(ctx, lg, products, seed.Categories)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	productIDs, err := seedProducts(ctx, lg, products, categoryIDs, seed.Products)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	created, err := seedClients(ctx, lg, clients, seed.Clients)
	if err != nil {
		return errors.Wrap(err, "seed clients")
	}
	if err := seedOrders(ctx, lg, order.NewService(postgres.NewOrderStore(pool)), created, productIDs, seed.Orders); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	if err := seedUsers(ctx, lg, user.NewService(postgres.NewUserRepository(pool), nil), seed.Users); err != nil {
		return errors.Wrap(err, "seed users")
	}
	return nil
}

func seedCategories(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, names []string) (map[string]int64, error) {
	for _, name := range names {
		c, err := repo.CreateCategory(ctx, name)
		switch {
		case errors.Is(err, product.ErrCategoryExists):
			continue
		case err != nil:
			return nil, errors.Wrapf(err, "create category %q", name)
		}
		lg.Info("Created category", zap.Int64("id", c.ID), zap.String("name", c.Name))
	}

	all, err := repo.ListCategories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	ids := make(map[string]int64, len(all))
	for _, c := range all {
		ids[c.Name] = c.ID
	}
	return ids, nil
}

// seedProducts skips products whose name is already in the catalog.
func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository,
	categoryIDs map[string]int64, items []productJSON,
) (map[string]int64, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	ids := make(map[string]int64, len(existing)+len(items))
	for _, p := range existing {
		ids[p.Name] = p.ID
	}

	for _, item := range items {
		if _, ok := ids[item.Name]; ok {
			continue
		}
		categoryID, ok := categoryIDs[item.Category]
		if !ok {
			return nil, errors.Errorf("product %q: unknown category %q", item.Name, item.Category)
		}
		p, err := repo.Create(ctx, product.Input{
			Name:       item.Name,
			Price:      item.Price,
			Weight:     item.Weight,
			CategoryID: categoryID,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create product %q", item.Name)
		}
		ids[p.Name] = p.ID
		lg.Info("Created product", zap.Int64("id", p.ID), zap.String("name", p.Name))
	}
	return ids, nil
}

// seedClients skips clients whose phone is already registered and returns
// the ids of the clients created by this run.
func seedClients(ctx context.Context, lg *zap.Logger, repo *postgres.ClientRepository, items []clientJSON) (map[string]int64, error) {
	created := make(map[string]int64, len(items))
	for _, item := range items {
		exists, err := repo.PhoneExists(ctx, item.Phone)
		if err != nil {
			return nil, errors.Wrapf(err, "check phone %q", item.Phone)
		}
		if exists {
			continue
		}
		c, err := client.New(client.Profile{
			FullName: item.FullName,
			Phone:    item.Phone,
			Address:  item.Address,
			Comment:  item.Comment,
		}, item.Cashback)
		if err != nil {
			return nil, errors.Wrapf(err, "client %q", item.FullName)
		}
		if err := repo.Create(ctx, c); err != nil {
			return nil, errors.Wrapf(err, "create client %q", item.FullName)
		}
		created[c.FullName] = c.ID
		lg.Info("Created client", zap.Int64("id", c.ID), zap.String("full_name", c.FullName))
	}
	return created, nil
}

// seedOrders settles orders only for clients created by this run, so
// re-running the seed does not duplicate history.
func seedOrders(ctx context.Context, lg *zap.Logger, svc *order.Service,
	clientIDs, productIDs map[string]int64, items []orderJSON,
) error {
	for _, item := range items {
		clientID, ok := clientIDs[item.Client]
		if !ok {
			continue
		}
		req := order.CreateOrderRequest{
			ClientID:        clientID,
			DeliveryMethod:  item.DeliveryMethod,
			DiscountPercent: item.DiscountPercent,
			DiscountReason:  item.DiscountReason,
			CashbackUsed:    item.CashbackUsed,
		}
		for _, p := range item.Products {
			productID, ok := productIDs[p.Product]
			if !ok {
				return errors.Errorf("order for %q: unknown product %q", item.Client, p.Product)
			}
			req.Lines = append(req.Lines, order.LineRequest{ProductID: productID, Quantity: p.Quantity})
		}
		res, err := svc.CreateOrder(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "order for %q", item.Client)
		}
		lg.Info("Settled order",
			zap.Int64("order_id", res.OrderID),
			zap.String("client", item.Client),
			zap.Stringer("final_price", res.FinalPrice),
		)
	}
	return nil
}

func seedUsers(ctx context.Context, lg *zap.Logger, svc *user.Service, items []userJSON) error {
	for _, item := range items {
		u, err := svc.CreateAccount(ctx, user.RegisterRequest{
			Email:     item.Email,
			FirstName: item.FirstName,
			LastName:  item.LastName,
			Password:  item.Password,
		})
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			continue
		case err != nil:
			return errors.Wrapf(err, "create user %q", item.Email)
		}
		lg.Info("Created user", zap.Int64("id", u.ID), zap.String("email", u.Email))
	}
	return nil
}
