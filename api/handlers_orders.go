package api

import (
	"net/http"

	"learnedge/purchase"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// CreateOrderRequest defines the expected body for starting a purchase.
type CreateOrderRequest struct {
	CourseID string `json:"course_id" binding:"required"`
}

// CreateOrderHandler starts a purchase.
// @Summary      Create an Order
// @Description  Creates a pending order for a published course and a payment with the processor.
// @Description  Redirect the buyer to `approve_url`; once they approve, call `/student/order/capture` with the returned ids.
// @Description  Buyer and course details are taken from the server, never from the request.
// @Tags         Orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        order body CreateOrderRequest true "The course to buy."
// @Success      201  {object}  utils.Envelope{data=purchase.Checkout} "Order created, awaiting approval."
// @Failure      400  {object}  utils.Envelope "Bad Request: course_id is missing."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      404  {object}  utils.Envelope "Not Found: no published course with this id."
// @Failure      409  {object}  utils.Envelope "Conflict: the caller already owns the course."
// @Failure      502  {object}  utils.Envelope "Bad Gateway: the payment processor failed. The order stays pending."
// @Router       /student/order/create [post]
func CreateOrderHandler(c *gin.Context, purchases *purchase.Service) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	checkout, err := purchases.Begin(c.Request.Context(), identity, req.CourseID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusCreated, "order created", checkout)
}

// CaptureOrderHandler completes a purchase after the buyer approved it.
// @Summary      Capture an Order
// @Description  Captures the payment of a pending order and grants the course.
// @Description
// @Description  Capturing an order that is already approved returns it unchanged, so the call is safe to retry.
// @Description  If the processor cannot be reached the order stays pending and the call may be retried.
// @Description  If the processor declines the payment the order is marked failed.
// @Tags         Orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        capture body purchase.CaptureRequest true "Ids returned by the processor after approval."
// @Success      200  {object}  utils.Envelope{data=models.Order} "Order approved."
// @Failure      400  {object}  utils.Envelope "Bad Request: ids missing or the payment id does not match the order."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the order belongs to another user."
// @Failure      404  {object}  utils.Envelope "Not Found: no such order."
// @Failure      409  {object}  utils.Envelope "Conflict: the order has already failed."
// @Failure      502  {object}  utils.Envelope "Bad Gateway: the payment was declined or the processor failed."
// @Router       /student/order/capture [post]
func CaptureOrderHandler(c *gin.Context, purchases *purchase.Service) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	var req purchase.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := purchases.Capture(c.Request.Context(), identity, req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "order confirmed", order)
}
