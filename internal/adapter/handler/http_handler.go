package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/shophub/internal/core/domain"
	"github.com/rl1809/shophub/internal/core/service"
)

const maxImageSize = 5 << 20

type HTTPHandler struct {
	orderService    *service.OrderService
	cartService     *service.CartService
	catalogService  *service.CatalogService
	authService     *service.AuthService
	checkoutTimeout time.Duration
	logger          zerolog.Logger
}

type Services struct {
	Orders  *service.OrderService
	Carts   *service.CartService
	Catalog *service.CatalogService
	Auth    *service.AuthService
}

func NewHTTPHandler(svc Services, checkoutTimeout time.Duration, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		orderService:    svc.Orders,
		cartService:     svc.Carts,
		catalogService:  svc.Catalog,
		authService:     svc.Auth,
		checkoutTimeout: checkoutTimeout,
		logger:          logger,
	}
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *HTTPHandler, verifier TokenVerifier, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(h.logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = corsOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", requestIDHeader)
	corsCfg.AllowCredentials = true
	if len(corsOrigins) > 0 {
		r.Use(cors.New(corsCfg))
	}

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id", h.GetProduct)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.SignUp)
	authGroup.POST("/verify", h.VerifyOTP)
	authGroup.POST("/resend", h.ResendOTP)
	authGroup.POST("/signin", h.SignIn)

	user := api.Group("", Authenticate(verifier))
	user.GET("/cart", h.GetCart)
	user.POST("/cart/items", h.AddToCart)
	user.PATCH("/cart/items/:itemId", h.UpdateCartItem)
	user.DELETE("/cart/items/:itemId", h.RemoveFromCart)
	user.DELETE("/cart", h.ClearCart)
	user.POST("/checkout", h.Checkout)
	user.GET("/orders", h.ListOrders)
	user.GET("/orders/:id", h.GetOrder)

	admin := api.Group("/admin", Authenticate(verifier), RequireAdmin())
	admin.POST("/products", h.CreateProduct)
	admin.PUT("/products/:id", h.UpdateProduct)
	admin.DELETE("/products/:id", h.DeleteProduct)
	admin.POST("/products/:id/image", h.UploadProductImage)
	admin.GET("/orders", h.ListAllOrders)
	admin.PATCH("/orders/:id/status", h.UpdateOrderStatus)

	return r
}

type addToCartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type productRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" binding:"required"`
	ImageURL    string          `json:"image_url"`
}

func (r productRequest) input() domain.ProductInput {
	return domain.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       *r.Stock,
		ImageURL:    r.ImageURL,
	}
}

type signUpRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

type resendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalogService.ListProducts(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	h.writeOK(c, http.StatusOK, "", out)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	p, err := h.catalogService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "", toProductResponse(p))
}

func (h *HTTPHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if !h.bind(c, &req) {
		return
	}

	user, err := h.authService.SignUp(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusCreated, "verification code sent", gin.H{"id": user.ID, "email": user.Email})
}

// SignIn only checks credentials; tokens are minted by the frontend session layer.
func (h *HTTPHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if !h.bind(c, &req) {
		return
	}

	user, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "signed in", toUserResponse(user))
}

func (h *HTTPHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.authService.VerifyOTP(c.Request.Context(), req.Email, req.Code); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "email verified", nil)
}

func (h *HTTPHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.authService.ResendOTP(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "verification code sent", nil)
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	cart, err := h.cartService.GetCart(c.Request.Context(), identity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "", toCartResponse(cart))
}

func (h *HTTPHandler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if !h.bind(c, &req) {
		return
	}

	cart, err := h.cartService.AddToCart(c.Request.Context(), identity(c), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "added to cart", toCartResponse(cart))
}

func (h *HTTPHandler) UpdateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if !h.bind(c, &req) {
		return
	}

	cart, err := h.cartService.UpdateCartItem(c.Request.Context(), identity(c), c.Param("itemId"), req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "cart updated", toCartResponse(cart))
}

func (h *HTTPHandler) RemoveFromCart(c *gin.Context) {
	cart, err := h.cartService.RemoveFromCart(c.Request.Context(), identity(c), c.Param("itemId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "item removed", toCartResponse(cart))
}

func (h *HTTPHandler) ClearCart(c *gin.Context) {
	if err := h.cartService.ClearCart(c.Request.Context(), identity(c)); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "cart cleared", nil)
}

func (h *HTTPHandler) Checkout(c *gin.Context) {
	ctx := c.Request.Context()
	if h.checkoutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.checkoutTimeout)
		defer cancel()
	}

	order, err := h.orderService.Checkout(ctx, identity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusCreated, "order placed successfully", toOrderResponse(order))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), identity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "", toOrderResponses(orders))
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), identity(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "", toOrderResponse(order))
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req productRequest
	if !h.bind(c, &req) {
		return
	}

	p, err := h.catalogService.CreateProduct(c.Request.Context(), identity(c), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusCreated, "product created", toProductResponse(p))
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req productRequest
	if !h.bind(c, &req) {
		return
	}

	p, err := h.catalogService.UpdateProduct(c.Request.Context(), identity(c), c.Param("id"), req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "product updated", toProductResponse(p))
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalogService.DeleteProduct(c.Request.Context(), identity(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "product deleted", nil)
}

func (h *HTTPHandler) UploadProductImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "image file is required"})
		return
	}
	if file.Size > maxImageSize {
		c.JSON(http.StatusBadRequest, Response{Message: "image exceeds 5MB"})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	p, err := h.catalogService.UploadProductImage(c.Request.Context(), identity(c), c.Param("id"),
		file.Filename, file.Header.Get("Content-Type"), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "image uploaded", toProductResponse(p))
}

func (h *HTTPHandler) ListAllOrders(c *gin.Context) {
	orders, err := h.orderService.ListAllOrders(c.Request.Context(), identity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "", toOrderResponses(orders))
}

func (h *HTTPHandler) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if !h.bind(c, &req) {
		return
	}

	order, err := h.orderService.UpdateOrderStatus(c.Request.Context(), identity(c), c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeOK(c, http.StatusOK, "order status updated", toOrderResponse(order))
}

func (h *HTTPHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Message: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status, message := httpStatus(err)
	if status == http.StatusUnauthorized {
		if _, ok := identityFrom(c); ok {
			status, message = http.StatusForbidden, "forbidden"
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	} else {
		h.logger.Debug().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request rejected")
	}
	c.JSON(status, Response{Message: message})
}

func identity(c *gin.Context) domain.Identity {
	id, _ := identityFrom(c)
	return id
}
