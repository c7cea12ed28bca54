package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/cart"
	"github.com/jafarshop/storefront/internal/checkout"
	"github.com/jafarshop/storefront/internal/config"
	"github.com/jafarshop/storefront/internal/domain"
	"github.com/jafarshop/storefront/internal/logging"
	"github.com/jafarshop/storefront/internal/payment"
	"github.com/jafarshop/storefront/internal/pricing"
	"github.com/jafarshop/storefront/internal/session"
	"github.com/jafarshop/storefront/internal/storage"
	"github.com/jafarshop/storefront/internal/wishlist"
	"github.com/jafarshop/storefront/pkg/errors"
)

const usage = `Commands:
  products [category]                 list the catalog
  product <id>                        show one product
  register <name> <email> <password>
  login <email> <password>
  logout
  whoami
  cart show | add <id> | remove <id> | set <id> <qty> | clear
  wishlist show | add <id> | remove <id> | move <id>
  addresses
  checkout <addressID|-> <card> [coupon]
  orders
  admin orders | users | refunds
  help
  quit`

type app struct {
	cfg      *config.Config
	client   *apiclient.Client
	session  *session.Store
	cart     *cart.Store
	wishlist *wishlist.Store
	provider payment.Provider
	logger   *zap.Logger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	backend, closeBackend, err := storage.NewBackend(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer closeBackend()

	client, err := apiclient.NewClient(cfg.API, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create API client: %v\n", err)
		os.Exit(1)
	}

	sess := session.NewStore(client, logger)
	sess.OnRedirect(func() {
		fmt.Printf("Session expired. Sign in again (%s).\n", cfg.API.LoginURL)
	})
	client.SetNavigator(sess)

	a := &app{
		cfg:      cfg,
		client:   client,
		session:  sess,
		cart:     cart.NewStore(storage.NewJSONRepository[cart.State](backend, storage.KeyCart, logger), logger),
		wishlist: wishlist.NewStore(storage.NewJSONRepository[wishlist.State](backend, storage.KeyWishlist, logger), logger),
		provider: payment.NewSandbox(logger),
		logger:   logger,
	}

	ctx := context.Background()
	if err := a.cart.Load(ctx); err != nil {
		logger.Warn("Could not restore cart", zap.Error(err))
	}
	if err := a.wishlist.Load(ctx); err != nil {
		logger.Warn("Could not restore wishlist", zap.Error(err))
	}
	if err := sess.Load(ctx); err != nil {
		logger.Warn("Could not reach the API", zap.Error(err))
	}

	// One-shot mode
	if len(os.Args) > 1 {
		if err := a.run(ctx, os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", errors.Message(err))
			os.Exit(1)
		}
		return
	}

	fmt.Println("storefront shell, type help for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := a.run(ctx, args); err != nil {
			fmt.Printf("Error: %s\n", errors.Message(err))
		}
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	switch args[0] {
	case "help":
		fmt.Println(usage)
		return nil
	case "products":
		category := ""
		if len(args) > 1 {
			category = args[1]
		}
		return a.listProducts(ctx, category)
	case "product":
		if len(args) < 2 {
			return fmt.Errorf("usage: product <id>")
		}
		p, err := a.client.GetProduct(ctx, args[1])
		if err != nil {
			return err
		}
		printProduct(*p)
		fmt.Printf("  %s\n", p.Description)
		return nil
	case "register":
		if len(args) < 4 {
			return fmt.Errorf("usage: register <name> <email> <password>")
		}
		user, err := a.session.Register(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		fmt.Printf("Welcome, %s\n", user.Name)
		return nil
	case "login":
		if len(args) < 3 {
			return fmt.Errorf("usage: login <email> <password>")
		}
		user, err := a.session.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", user.Name, user.Role)
		return nil
	case "logout":
		return a.session.Logout(ctx)
	case "whoami":
		if u := a.session.User(); u != nil {
			fmt.Printf("%s <%s> role=%s\n", u.Name, u.Email, u.Role)
		} else {
			fmt.Println("Not signed in")
		}
		return nil
	case "cart":
		return a.runCart(ctx, args[1:])
	case "wishlist":
		return a.runWishlist(ctx, args[1:])
	case "addresses":
		addresses, err := a.client.ListAddresses(ctx)
		if err != nil {
			return err
		}
		for _, addr := range addresses {
			marker := " "
			if addr.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s  %s, %s %s, %s\n", marker, addr.ID, addr.Street, addr.City, addr.PostalCode, addr.Country)
		}
		return nil
	case "checkout":
		if len(args) < 3 {
			return fmt.Errorf("usage: checkout <addressID|-> <card> [coupon]")
		}
		coupon := ""
		if len(args) > 3 {
			coupon = args[3]
		}
		return a.checkout(ctx, args[1], args[2], coupon)
	case "orders":
		orders, err := a.client.MyOrders(ctx)
		if err != nil {
			return err
		}
		printOrders(orders)
		return nil
	case "admin":
		return a.runAdmin(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
}

func (a *app) listProducts(ctx context.Context, category string) error {
	cursor := ""
	for {
		page, err := a.client.ListProducts(ctx, apiclient.ListProductsParams{
			Cursor:   cursor,
			Limit:    50,
			Category: category,
		})
		if err != nil {
			return err
		}
		for _, p := range page.Items {
			printProduct(p)
		}
		if !page.HasMore {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (a *app) runCart(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		for _, item := range a.cart.Items() {
			fmt.Printf("%-24s %-28s x%-3d %8s\n", item.Product.ID, item.Product.Name, item.Quantity, item.Subtotal().StringFixed(2))
		}
		q := pricing.Derive(a.cart.Total(), decimal.Zero)
		fmt.Printf("Items %s  Tax %s  Shipping %s  Total %s\n",
			q.ItemsPrice.StringFixed(2), q.TaxPrice.StringFixed(2), q.ShippingPrice.StringFixed(2), q.TotalPrice.StringFixed(2))
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("usage: cart add <id>")
		}
		p, err := a.client.GetProduct(ctx, args[1])
		if err != nil {
			return err
		}
		return a.cart.AddItem(ctx, *p)
	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: cart remove <id>")
		}
		return a.cart.RemoveItem(ctx, args[1])
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("usage: cart set <id> <qty>")
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity must be an integer")
		}
		return a.cart.UpdateQuantity(ctx, args[1], qty)
	case "clear":
		return a.cart.Clear(ctx)
	default:
		return fmt.Errorf("unknown cart command %q", args[0])
	}
}

func (a *app) runWishlist(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		for _, item := range a.wishlist.Items() {
			fmt.Printf("%-24s %-28s %8s  saved %s\n", item.Product.ID, item.Product.Name,
				item.Product.Price.StringFixed(2), item.AddedAt.Format("2006-01-02"))
		}
		return nil
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: wishlist %s <id>", args[0])
	}

	switch args[0] {
	case "add":
		p, err := a.client.GetProduct(ctx, args[1])
		if err != nil {
			return err
		}
		return a.wishlist.AddItem(ctx, *p)
	case "remove":
		return a.wishlist.RemoveItem(ctx, args[1])
	case "move":
		return a.wishlist.MoveToCart(ctx, args[1], a.cart)
	default:
		return fmt.Errorf("unknown wishlist command %q", args[0])
	}
}

func (a *app) checkout(ctx context.Context, addressID, card, coupon string) error {
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("sign in before checking out")
	}

	addresses, err := a.client.ListAddresses(ctx)
	if err != nil {
		return err
	}
	var address *domain.Address
	for i := range addresses {
		if addresses[i].ID == addressID || (addressID == "-" && addresses[i].IsDefault) {
			address = &addresses[i]
			break
		}
	}
	if address == nil {
		return fmt.Errorf("no saved address matches %q", addressID)
	}

	co := checkout.New(a.client, a.cart, a.provider, a.logger)
	co.Subscribe(func(s checkout.State) {
		fmt.Printf("  step: %s\n", s.Step)
	})

	if err := co.Start(ctx); err != nil {
		return err
	}
	if err := co.SelectAddress(*address); err != nil {
		return err
	}
	if coupon != "" {
		v, err := co.ApplyCoupon(ctx, coupon)
		if err != nil {
			return err
		}
		fmt.Printf("  coupon %s: -%s\n", v.Code, v.DiscountAmount.StringFixed(2))
	}

	order, err := co.SubmitShipping(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  order %s total %s\n", order.ID, order.TotalPrice.StringFixed(2))

	paid, err := co.Pay(ctx, card)
	if err != nil {
		return err
	}
	fmt.Printf("Order %s is %s\n", paid.ID, paid.Status)
	return nil
}

func (a *app) runAdmin(ctx context.Context, args []string) error {
	if !a.session.IsAdmin() {
		return fmt.Errorf("admin access required")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: admin orders | users | refunds")
	}

	switch args[0] {
	case "orders":
		orders, err := a.client.ListOrders(ctx, "")
		if err != nil {
			return err
		}
		printOrders(orders)
	case "users":
		users, err := a.client.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%-24s %-20s %-28s %s\n", u.ID, u.Name, u.Email, u.Role)
		}
	case "refunds":
		refunds, err := a.client.ListRefunds(ctx, "")
		if err != nil {
			return err
		}
		for _, r := range refunds {
			fmt.Printf("%-24s order=%s %8s %-9s %s\n", r.ID, r.Order, r.Amount.StringFixed(2), r.Status, r.Reason)
		}
	default:
		return fmt.Errorf("unknown admin command %q", args[0])
	}
	return nil
}

func printProduct(p domain.Product) {
	stock := strconv.Itoa(p.CountInStock)
	if p.CountInStock == 0 {
		stock = "sold out"
	}
	fmt.Printf("%-24s %-28s %8s  %-12s %s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Category, stock)
}

func printOrders(orders []domain.Order) {
	for _, o := range orders {
		fmt.Printf("%-24s %s %-9s %8s  %d items\n", o.ID, o.CreatedAt.Format("2006-01-02"), o.Status,
			o.TotalPrice.StringFixed(2), len(o.OrderItems))
	}
}
