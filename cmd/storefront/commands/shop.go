package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/storefront"
)

// argument returns the i-th positional argument or a usage error.
func argument(cmd *cli.Command, i int, name string) (string, error) {
	if cmd.Args().Len() <= i {
		return "", cli.Exit(fmt.Sprintf("missing <%s> argument", name), 1)
	}
	return cmd.Args().Get(i), nil
}

func productsCommand() *cli.Command {
	return &cli.Command{
		Name:  "products",
		Usage: "browse and manage the catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list products",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "limit", Value: 12},
					&cli.StringFlag{Name: "category", Usage: "category id or slug"},
					&cli.StringFlag{Name: "search"},
				},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					page, err := s.app.Shop.Products.List(ctx, storefront.ProductQuery{
						Page:     cmd.Int("page"),
						Limit:    cmd.Int("limit"),
						Category: cmd.String("category"),
						Search:   cmd.String("search"),
					})
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, page)
				}),
			},
			{
				Name:      "get",
				Usage:     "show one product",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "id")
					if err != nil {
						return err
					}
					product, err := s.app.Shop.Products.Get(ctx, id)
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, product)
				}),
			},
			{
				Name:  "create",
				Usage: "add a product (admin)",
				Flags: productFlags(),
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					product, err := s.app.Shop.Products.Create(ctx, productInput(cmd))
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, product)
				}),
			},
			{
				Name:      "update",
				Usage:     "replace a product's attributes (admin)",
				ArgsUsage: "<id>",
				Flags:     productFlags(),
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "id")
					if err != nil {
						return err
					}
					product, err := s.app.Shop.Products.Update(ctx, id, productInput(cmd))
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, product)
				}),
			},
			{
				Name:      "delete",
				Usage:     "remove a product (admin)",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "id")
					if err != nil {
						return err
					}
					if err := s.app.Shop.Products.Delete(ctx, id); err != nil {
						return userError(err)
					}
					fmt.Fprintln(s.out, "Deleted", id)
					return nil
				}),
			},
			{
				Name:      "import",
				Usage:     "bulk-create products from a CSV or JSON file (admin)",
				ArgsUsage: "<file>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					path, err := argument(cmd, 0, "file")
					if err != nil {
						return err
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer func() { _ = f.Close() }()

					result, err := s.app.Shop.Products.Import(ctx, filepath.Base(path), f)
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, result)
				}),
			},
		},
	}
}

func productFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.FloatFlag{Name: "price", Required: true},
		&cli.IntFlag{Name: "stock"},
		&cli.StringFlag{Name: "image-url"},
		&cli.StringFlag{Name: "category", Usage: "category id"},
	}
}

func productInput(cmd *cli.Command) storefront.ProductInput {
	return storefront.ProductInput{
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
		Price:       cmd.Float("price"),
		Stock:       cmd.Int("stock"),
		ImageURL:    cmd.String("image-url"),
		CategoryID:  cmd.String("category"),
	}
}

func categoriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "categories",
		Usage: "list product categories",
		Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
			categories, err := s.app.Shop.Categories.List(ctx)
			if err != nil {
				return userError(err)
			}
			return printJSON(s.out, categories)
		}),
	}
}

func cartCommand() *cli.Command {
	return &cli.Command{
		Name:  "cart",
		Usage: "show and change the cart",
		Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
			cart, err := s.app.Shop.Cart.Get(ctx)
			if err != nil {
				return userError(err)
			}
			return printJSON(s.out, cart)
		}),
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "add a product to the cart",
				ArgsUsage: "<product-id>",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "quantity", Aliases: []string{"q"}, Value: 1}},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "product-id")
					if err != nil {
						return err
					}
					cart, err := s.app.Shop.Cart.AddItem(ctx, id, cmd.Int("quantity"))
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, cart)
				}),
			},
			{
				Name:      "set",
				Usage:     "change the quantity of a cart line",
				ArgsUsage: "<item-id> <quantity>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "item-id")
					if err != nil {
						return err
					}
					raw, err := argument(cmd, 1, "quantity")
					if err != nil {
						return err
					}
					quantity, err := strconv.Atoi(raw)
					if err != nil {
						return cli.Exit("quantity must be a number", 1)
					}
					cart, err := s.app.Shop.Cart.UpdateItem(ctx, id, quantity)
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, cart)
				}),
			},
			{
				Name:      "remove",
				Usage:     "remove a cart line",
				ArgsUsage: "<item-id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "item-id")
					if err != nil {
						return err
					}
					cart, err := s.app.Shop.Cart.RemoveItem(ctx, id)
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, cart)
				}),
			},
			{
				Name:  "clear",
				Usage: "empty the cart",
				Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
					if err := s.app.Shop.Cart.Clear(ctx); err != nil {
						return userError(err)
					}
					fmt.Fprintln(s.out, "Cart cleared")
					return nil
				}),
			},
		},
	}
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:  "orders",
		Usage: "place and list orders",
		Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
			orders, err := s.app.Shop.Orders.List(ctx)
			if err != nil {
				return userError(err)
			}
			return printJSON(s.out, orders)
		}),
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "show one order",
				ArgsUsage: "<id>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					id, err := argument(cmd, 0, "id")
					if err != nil {
						return err
					}
					order, err := s.app.Shop.Orders.Get(ctx, id)
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, order)
				}),
			},
			{
				Name:  "create",
				Usage: "place an order",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "shipping address id", Required: true},
					&cli.StringSliceFlag{Name: "item", Usage: "product-id:quantity, repeatable", Required: true},
				},
				Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
					items, err := parseOrderItems(cmd.StringSlice("item"))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					order, err := s.app.Shop.Orders.Create(ctx, storefront.CreateOrder{
						AddressID: cmd.String("address"),
						Items:     items,
					})
					if err != nil {
						return userError(err)
					}
					return printJSON(s.out, order)
				}),
			},
		},
	}
}

// parseOrderItems reads "product-id:quantity" pairs. The quantity defaults to 1.
func parseOrderItems(raw []string) ([]storefront.OrderItem, error) {
	items := make([]storefront.OrderItem, 0, len(raw))
	for _, entry := range raw {
		id, qty, found := strings.Cut(entry, ":")
		item := storefront.OrderItem{ProductID: strings.TrimSpace(id), Quantity: 1}
		if item.ProductID == "" {
			return nil, fmt.Errorf("invalid item %q", entry)
		}
		if found {
			n, err := strconv.Atoi(qty)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid quantity in %q", entry)
			}
			item.Quantity = n
		}
		items = append(items, item)
	}
	return items, nil
}

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "send a raw request through the authenticated pipeline",
		ArgsUsage: "<METHOD> <path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "JSON request body"},
			&cli.BoolFlag{Name: "public", Usage: "send without credentials"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			method, err := argument(cmd, 0, "METHOD")
			if err != nil {
				return err
			}
			path, err := argument(cmd, 1, "path")
			if err != nil {
				return err
			}

			req, err := rawRequest(method, path, cmd.String("data"), cmd.Bool("public"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			var data json.RawMessage
			if err := s.app.Client.Do(ctx, req, &data); err != nil {
				return userError(err)
			}
			if len(data) == 0 {
				return nil
			}
			return printJSON(s.out, data)
		}),
	}
}

// rawRequest builds a Request from command line input. A query string in path is
// split off into Query.
func rawRequest(method, path, data string, public bool) (api.Request, error) {
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return api.Request{}, fmt.Errorf("unsupported method %s", method)
	}

	req := api.Request{Method: method, Public: public, ReturnTo: path}

	p, rawQuery, _ := strings.Cut(path, "?")
	req.Path = p
	if rawQuery != "" {
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			return api.Request{}, fmt.Errorf("invalid query: %w", err)
		}
		req.Query = query
	}

	if data != "" {
		if !json.Valid([]byte(data)) {
			return api.Request{}, fmt.Errorf("--data is not valid JSON")
		}
		req.RawBody = []byte(data)
		req.ContentType = "application/json"
	}
	return req, nil
}
