package fakeapi

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyReviewed = errors.New("submission already reviewed")
)

const (
	DefaultSeedUsers  = 120
	DefaultSeedOrders = 300
)

var (
	userRoles     = []string{"editor", "client"}
	orderStatuses = []string{"pending", "in_progress", "delivered", "completed", "cancelled", "disputed"}
	documentTypes = []string{"passport", "id_card", "drivers_license"}
	orderKinds    = []string{"Wedding highlights", "YouTube vlog", "Product teaser", "Podcast clips", "Music video", "Travel reel"}
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsBanned  bool      `json:"isBanned"`
	KYCStatus string    `json:"kycStatus,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Order struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Amount     float64   `json:"amount"`
	ClientID   string    `json:"clientId"`
	ClientName string    `json:"clientName"`
	EditorID   string    `json:"editorId,omitempty"`
	EditorName string    `json:"editorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type KYCSubmission struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	DocumentType    string    `json:"documentType"`
	Status          string    `json:"status"`
	SubmittedAt     time.Time `json:"submittedAt"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
}

type DashboardStats struct {
	TotalUsers      int     `json:"totalUsers"`
	TotalEditors    int     `json:"totalEditors"`
	TotalClients    int     `json:"totalClients"`
	ActiveOrders    int     `json:"activeOrders"`
	CompletedOrders int     `json:"completedOrders"`
	PendingKYC      int     `json:"pendingKYC"`
	Revenue         float64 `json:"revenue"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type UserFilter struct {
	Search string
	Role   string
	Banned *bool
}

// DataStore keeps the marketplace data the admin pages browse. The same seed
// always produces the same data.
type DataStore struct {
	mu        sync.RWMutex
	users     []*User
	usersByID map[string]*User
	orders    []*Order
	kyc       []*KYCSubmission
	kycByID   map[string]*KYCSubmission
}

func NewDataStore(seed int64, usersCount, ordersCount int) *DataStore {
	faker := gofakeit.New(seed)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)

	d := &DataStore{
		usersByID: map[string]*User{},
		kycByID:   map[string]*KYCSubmission{},
	}

	var editors, clients []*User
	for i := 0; i < usersCount; i++ {
		u := &User{
			ID:        faker.UUID(),
			Name:      faker.Name(),
			Email:     strings.ToLower(faker.Email()),
			Role:      faker.RandomString(userRoles),
			IsBanned:  faker.Number(1, 20) == 1,
			CreatedAt: faker.DateRange(start, end).UTC(),
		}
		if u.Role == "editor" {
			editors = append(editors, u)
			// every editor goes through KYC before taking orders
			sub := &KYCSubmission{
				ID:           faker.UUID(),
				UserID:       u.ID,
				UserName:     u.Name,
				DocumentType: faker.RandomString(documentTypes),
				Status:       faker.RandomString([]string{"pending", "approved", "approved", "rejected"}),
				SubmittedAt:  u.CreatedAt.Add(time.Duration(faker.Number(1, 72)) * time.Hour),
			}
			if sub.Status == "rejected" {
				sub.RejectionReason = "Document photo is not readable"
			}
			u.KYCStatus = sub.Status
			d.kyc = append(d.kyc, sub)
			d.kycByID[sub.ID] = sub
		} else {
			clients = append(clients, u)
		}
		d.users = append(d.users, u)
		d.usersByID[u.ID] = u
	}

	if len(clients) > 0 {
		for i := 0; i < ordersCount; i++ {
			client := clients[faker.Number(0, len(clients)-1)]
			o := &Order{
				ID:         faker.UUID(),
				Title:      fmt.Sprintf("%s for %s", faker.RandomString(orderKinds), faker.Company()),
				Status:     faker.RandomString(orderStatuses),
				Amount:     math.Round(faker.Price(50, 2500)*100) / 100,
				ClientID:   client.ID,
				ClientName: client.Name,
				CreatedAt:  faker.DateRange(client.CreatedAt, end).UTC(),
			}
			if o.Status != "pending" && len(editors) > 0 {
				editor := editors[faker.Number(0, len(editors)-1)]
				o.EditorID = editor.ID
				o.EditorName = editor.Name
			}
			d.orders = append(d.orders, o)
		}
	}

	// newest first, like the admin pages show them
	sort.SliceStable(d.users, func(i, j int) bool { return d.users[i].CreatedAt.After(d.users[j].CreatedAt) })
	sort.SliceStable(d.orders, func(i, j int) bool { return d.orders[i].CreatedAt.After(d.orders[j].CreatedAt) })
	sort.SliceStable(d.kyc, func(i, j int) bool { return d.kyc[i].SubmittedAt.After(d.kyc[j].SubmittedAt) })

	return d
}

func (d *DataStore) ListUsers(filter UserFilter, page, limit int) ([]User, Pagination) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]User, 0, len(d.users))
	for _, u := range d.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Banned != nil && u.IsBanned != *filter.Banned {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		matched = append(matched, *u)
	}
	return paginate(matched, page, limit)
}

func (d *DataStore) User(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.usersByID[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (d *DataStore) SetBanned(id string, banned bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.usersByID[id]
	if !ok {
		return ErrNotFound
	}
	u.IsBanned = banned
	return nil
}

func (d *DataStore) ListOrders(status string, page, limit int) ([]Order, Pagination) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matched := make([]Order, 0, len(d.orders))
	for _, o := range d.orders {
		if status != "" && o.Status != status {
			continue
		}
		matched = append(matched, *o)
	}
	return paginate(matched, page, limit)
}

func (d *DataStore) ListKYC(status string) []KYCSubmission {
	d.mu.RLock()
	defer d.mu.RUnlock()

	matched := make([]KYCSubmission, 0, len(d.kyc))
	for _, k := range d.kyc {
		if status != "" && k.Status != status {
			continue
		}
		matched = append(matched, *k)
	}
	return matched
}

// ReviewKYC settles a pending submission and mirrors the outcome on the user.
func (d *DataStore) ReviewKYC(id string, approve bool, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sub, ok := d.kycByID[id]
	if !ok {
		return ErrNotFound
	}
	if sub.Status != "pending" {
		return ErrAlreadyReviewed
	}

	if approve {
		sub.Status = "approved"
	} else {
		sub.Status = "rejected"
		sub.RejectionReason = reason
	}
	if u, ok := d.usersByID[sub.UserID]; ok {
		u.KYCStatus = sub.Status
	}
	return nil
}

func (d *DataStore) Stats() DashboardStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DashboardStats{TotalUsers: len(d.users)}
	for _, u := range d.users {
		switch u.Role {
		case "editor":
			stats.TotalEditors++
		case "client":
			stats.TotalClients++
		}
	}
	for _, o := range d.orders {
		switch o.Status {
		case "pending", "in_progress", "delivered", "disputed":
			stats.ActiveOrders++
		case "completed":
			stats.CompletedOrders++
			stats.Revenue += o.Amount
		}
	}
	for _, k := range d.kyc {
		if k.Status == "pending" {
			stats.PendingKYC++
		}
	}
	stats.Revenue = math.Round(stats.Revenue*100) / 100
	return stats
}

func paginate[T any](items []T, page, limit int) ([]T, Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	total := len(items)
	pagination := Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}

	from := (page - 1) * limit
	if from >= total {
		return []T{}, pagination
	}
	to := min(from+limit, total)
	return items[from:to], pagination
}
