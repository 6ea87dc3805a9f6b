package synth

import (
	"fmt"
	"math"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// User is the payload for user-related paths.
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Nickname   string `json:"nickname"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Avatar     string `json:"avatar"`
	Status     int    `json:"status"`
	CreateTime string `json:"createTime"`
}

// Order is the payload for order-related paths.
type Order struct {
	ID         string      `json:"id"`
	UserID     int         `json:"userId"`
	Amount     float64     `json:"amount"`
	Status     string      `json:"status"`
	CreateTime string      `json:"createTime"`
	Items      []OrderItem `json:"items"`
}

// OrderItem is one line of an Order.
type OrderItem struct {
	ProductID   int     `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Product is the payload for product-related paths.
type Product struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	CreateTime  string  `json:"createTime"`
}

// Login is the payload for POST login paths.
type Login struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpireTime   int64     `json:"expireTime"`
	UserInfo     LoginUser `json:"userInfo"`
}

// LoginUser is the user summary returned with a Login.
type LoginUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// Page is the payload for GET list paths.
type Page struct {
	List     []Record `json:"list"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"pageSize"`
}

// Record is the generic payload.
type Record struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Status     string `json:"status"`
	CreateTime string `json:"createTime"`
	UpdateTime string `json:"updateTime"`
}

// Page sizes are drawn from [minPageSize, minPageSize+pageSizeSpread).
const (
	minPageSize    = 5
	pageSizeSpread = 10
)

func (s *Synthesizer) user() User {
	return User{
		ID:         s.intN(1000) + 1,
		Username:   "mockuser" + strconv.Itoa(s.intN(100)),
		Nickname:   "Mock User",
		Email:      "mock@example.com",
		Phone:      "13800138000",
		Avatar:     "https://example.com/avatar.jpg",
		Status:     1,
		CreateTime: s.timestamp(),
	}
}

func (s *Synthesizer) order() Order {
	return Order{
		ID:         "ORD" + strconv.FormatInt(s.now().UnixMilli(), 10),
		UserID:     s.intN(1000) + 1,
		Amount:     money(s.randFloat() * 1000),
		Status:     "pending",
		CreateTime: s.timestamp(),
		Items: []OrderItem{{
			ProductID:   s.intN(100) + 1,
			ProductName: "Mock Product",
			Quantity:    s.intN(5) + 1,
			Price:       money(s.randFloat() * 100),
		}},
	}
}

func (s *Synthesizer) product() Product {
	return Product{
		ID:          s.intN(1000) + 1,
		Name:        "Mock Product " + strconv.Itoa(s.intN(100)),
		Description: "This is a mock product description",
		Price:       money(s.randFloat() * 1000),
		Stock:       s.intN(100),
		Category:    "Electronics",
		Status:      "active",
		CreateTime:  s.timestamp(),
	}
}

// loginClaims are the claims carried by generated login tokens.
type loginClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Synthesizer) login() (Login, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	info := LoginUser{ID: 1, Username: "mockuser", Nickname: "Mock User", Role: "user"}

	claims := loginClaims{
		Username: info.Username,
		Role:     info.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "apimock",
			Subject:   strconv.Itoa(info.ID),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Login{}, fmt.Errorf("signing token: %w", err)
	}

	return Login{
		Token:        token,
		RefreshToken: "mock_refresh_token_" + uuid.NewString(),
		ExpireTime:   expires.UnixMilli(),
		UserInfo:     info,
	}, nil
}

func (s *Synthesizer) page() Page {
	count := s.intN(pageSizeSpread) + minPageSize
	list := make([]Record, count)
	for i := range list {
		list[i] = s.generic()
	}
	return Page{
		List:     list,
		Total:    count + s.intN(100),
		Page:     1,
		PageSize: count,
	}
}

func (s *Synthesizer) generic() Record {
	ts := s.timestamp()
	return Record{
		ID:         s.intN(1000) + 1,
		Name:       "Mock User " + strconv.Itoa(s.intN(100)+1),
		Email:      "user" + strconv.Itoa(s.intN(1000)) + "@example.com",
		Phone:      fmt.Sprintf("138%08d", s.intN(100000000)),
		Status:     "active",
		CreateTime: ts,
		UpdateTime: ts,
	}
}

// money rounds to two decimal places.
func money(v float64) float64 {
	return math.Round(v*100) / 100
}
