package devserver

import (
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/florianilch/storefront/internal/session"
	"github.com/florianilch/storefront/internal/storefront"
)

var (
	errEmailTaken         = errors.New("email already registered")
	errInvalidCredentials = errors.New("invalid credentials")
	errNotFound           = errors.New("not found")
	errInsufficientStock  = errors.New("insufficient stock")
)

type account struct {
	user session.User
	hash []byte
}

// store holds all backend state in memory.
type store struct {
	mu sync.RWMutex

	users      map[string]*account // by lower-cased email
	userIDs    map[string]*account
	categories []storefront.Category
	products   map[string]storefront.Product
	productIDs []string // insertion order
	carts      map[string]*storefront.Cart
	orders     map[string][]storefront.Order
}

func newStore() *store {
	s := &store{
		users:    make(map[string]*account),
		userIDs:  make(map[string]*account),
		products: make(map[string]storefront.Product),
		carts:    make(map[string]*storefront.Cart),
		orders:   make(map[string][]storefront.Order),
	}
	s.seed()
	return s
}

func (s *store) seed() {
	s.categories = []storefront.Category{
		{ID: uuid.NewString(), Name: "Kitchen", Slug: "kitchen", Description: "Cookware and tableware"},
		{ID: uuid.NewString(), Name: "Office", Slug: "office", Description: "Desk and stationery"},
	}
	kitchen, office := s.categories[0].ID, s.categories[1].ID

	for _, in := range []storefront.ProductInput{
		{Name: "Enamel Mug", Description: "Speckled enamel, 350 ml", Price: 12.5, Stock: 40, CategoryID: kitchen},
		{Name: "Chef Knife", Description: "20 cm carbon steel blade", Price: 89, Stock: 8, CategoryID: kitchen},
		{Name: "Linen Notebook", Description: "A5, dotted pages", Price: 18, Stock: 25, CategoryID: office},
		{Name: "Desk Lamp", Description: "Dimmable LED", Price: 45, Stock: 12, CategoryID: office},
	} {
		s.putProduct("", in)
	}
}

func (s *store) createUser(name, email, password, role string) (session.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return session.User{}, err
	}

	key := strings.ToLower(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[key]; ok {
		return session.User{}, errEmailTaken
	}
	acc := &account{
		user: session.User{ID: uuid.NewString(), Email: email, Name: name, Role: role},
		hash: hash,
	}
	s.users[key] = acc
	s.userIDs[acc.user.ID] = acc
	return acc.user, nil
}

func (s *store) authenticate(email, password string) (session.User, error) {
	s.mu.RLock()
	acc, ok := s.users[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return session.User{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return session.User{}, errInvalidCredentials
	}
	return acc.user, nil
}

func (s *store) user(id string) (session.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.userIDs[id]
	if !ok {
		return session.User{}, false
	}
	return acc.user, true
}

func (s *store) listCategories() []storefront.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories)
}

func (s *store) category(id string) *storefront.Category {
	for _, c := range s.categories {
		if c.ID == id {
			return &c
		}
	}
	return nil
}

// listProducts filters by category (id or slug) and a case-insensitive search over
// name and description, then returns the requested page.
func (s *store) listProducts(q storefront.ProductQuery) storefront.ProductPage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	matched := make([]storefront.Product, 0, len(s.productIDs))
	for _, id := range s.productIDs {
		p := s.products[id]
		if q.Category != "" && p.CategoryID != q.Category && (p.Category == nil || p.Category.Slug != q.Category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		matched = append(matched, p)
	}

	total := len(matched)
	// Pages past the end are empty; bounding page first keeps the offset from overflowing
	start := total
	if q.Page <= total/q.Limit+1 {
		start = min((q.Page-1)*q.Limit, total)
	}
	end := min(start+q.Limit, total)

	return storefront.ProductPage{
		Products: matched[start:end],
		Pagination: storefront.Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}
}

func (s *store) product(id string) (storefront.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// saveProduct creates a product when id is empty and replaces it otherwise.
func (s *store) saveProduct(id string, in storefront.ProductInput) (storefront.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.products[id]; !ok {
			return storefront.Product{}, errNotFound
		}
	}
	return s.putProduct(id, in), nil
}

// putProduct requires s.mu to be held (or the store to be unshared).
func (s *store) putProduct(id string, in storefront.ProductInput) storefront.Product {
	p := storefront.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
		CategoryID:  in.CategoryID,
		Category:    s.category(in.CategoryID),
	}
	if existing, ok := s.products[id]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.NewString()
		p.CreatedAt = time.Now().UTC()
		s.productIDs = append(s.productIDs, p.ID)
	}
	s.products[p.ID] = p
	return p
}

func (s *store) deleteProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return errNotFound
	}
	delete(s.products, id)
	s.productIDs = slices.DeleteFunc(s.productIDs, func(pid string) bool { return pid == id })
	return nil
}

// cart returns a priced copy of the user's cart. Lines whose product was deleted are dropped.
func (s *store) cart(userID string) storefront.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pricedCart(userID)
}

func (s *store) pricedCart(userID string) storefront.Cart {
	out := storefront.Cart{Items: []storefront.CartItem{}}
	c, ok := s.carts[userID]
	if !ok {
		return out
	}
	out.ID = c.ID
	for _, item := range c.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		item.Product = &p
		out.Items = append(out.Items, item)
		out.Total += p.Price * float64(item.Quantity)
	}
	return out
}

func (s *store) addCartItem(userID, productID string, quantity int) (storefront.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return storefront.Cart{}, errNotFound
	}

	c := s.carts[userID]
	i := -1
	if c != nil {
		i = slices.IndexFunc(c.Items, func(item storefront.CartItem) bool { return item.ProductID == productID })
	}

	// Validate before touching the cart so a rejected add leaves no trace
	existing := 0
	if i >= 0 {
		existing = c.Items[i].Quantity
	}
	if existing+quantity > p.Stock {
		return storefront.Cart{}, errInsufficientStock
	}

	if c == nil {
		c = &storefront.Cart{ID: uuid.NewString()}
		s.carts[userID] = c
	}
	if i < 0 {
		c.Items = append(c.Items, storefront.CartItem{ID: uuid.NewString(), ProductID: productID})
		i = len(c.Items) - 1
	}
	c.Items[i].Quantity += quantity
	return s.pricedCart(userID), nil
}

func (s *store) updateCartItem(userID, itemID string, quantity int) (storefront.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return storefront.Cart{}, errNotFound
	}
	i := slices.IndexFunc(c.Items, func(item storefront.CartItem) bool { return item.ID == itemID })
	if i < 0 {
		return storefront.Cart{}, errNotFound
	}
	if p, ok := s.products[c.Items[i].ProductID]; ok && quantity > p.Stock {
		return storefront.Cart{}, errInsufficientStock
	}
	c.Items[i].Quantity = quantity
	return s.pricedCart(userID), nil
}

func (s *store) removeCartItem(userID, itemID string) (storefront.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[userID]
	if !ok {
		return storefront.Cart{}, errNotFound
	}
	n := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(item storefront.CartItem) bool { return item.ID == itemID })
	if len(c.Items) == n {
		return storefront.Cart{}, errNotFound
	}
	return s.pricedCart(userID), nil
}

func (s *store) clearCart(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
}

// placeOrder prices the items, decrements stock and removes the ordered products from
// the cart. Either every line is accepted or none is.
func (s *store) placeOrder(userID string, in storefront.CreateOrder) (storefront.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := storefront.Order{
		ID:        uuid.NewString(),
		Status:    "PENDING",
		AddressID: in.AddressID,
		CreatedAt: time.Now().UTC(),
	}
	requested := make(map[string]int, len(in.Items))
	for _, line := range in.Items {
		p, ok := s.products[line.ProductID]
		if !ok {
			return storefront.Order{}, errNotFound
		}
		requested[p.ID] += line.Quantity
		if requested[p.ID] > p.Stock {
			return storefront.Order{}, errInsufficientStock
		}
		order.Items = append(order.Items, storefront.OrderItem{ProductID: p.ID, Quantity: line.Quantity, Price: p.Price})
		order.Total += p.Price * float64(line.Quantity)
	}

	for _, line := range order.Items {
		p := s.products[line.ProductID]
		p.Stock -= line.Quantity
		s.products[p.ID] = p
	}
	if c, ok := s.carts[userID]; ok {
		c.Items = slices.DeleteFunc(c.Items, func(item storefront.CartItem) bool {
			return slices.ContainsFunc(order.Items, func(o storefront.OrderItem) bool { return o.ProductID == item.ProductID })
		})
	}

	s.orders[userID] = append(s.orders[userID], order)
	return order, nil
}

func (s *store) listOrders(userID string) []storefront.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storefront.Order{}, s.orders[userID]...)
}

func (s *store) order(userID, id string) (storefront.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders[userID] {
		if o.ID == id {
			return o, true
		}
	}
	return storefront.Order{}, false
}
