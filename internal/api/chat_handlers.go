package api

import (
	"net/http"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/chat"
	"github.com/gigroom/gigroom/internal/models"
	"github.com/gin-gonic/gin"
)

type createRoomRequest struct {
	Organizer uint `json:"organizer"`
	Vendor    uint `json:"vendor"`
}

type postMessageRequest struct {
	Text          string             `json:"text"`
	MessageType   models.MessageType `json:"message_type"`
	Bid           *uint              `json:"bid"`
	TipAmount     *models.Amount     `json:"tip_amount"`
	AttachmentIDs []uint             `json:"attachment_ids"`
}

type createBidRequest struct {
	Amount         models.Amount `json:"amount"`
	Currency       string        `json:"currency"`
	Tier           string        `json:"tier"`
	Notes          string        `json:"notes"`
	IdempotencyKey string        `json:"idempotency_key" binding:"required"`
}

func handleListRooms(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := svc.ListRoomsFor(c.Request.Context(), auth.FromContext(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rooms)
	}
}

func handleCreateRoom(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoomRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		room, _, err := svc.GetOrCreateRoom(c.Request.Context(), auth.FromContext(c), req.Organizer, req.Vendor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func handleRoomWithUser(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, _, err := svc.RoomWithUser(c.Request.Context(), auth.FromContext(c), c.Param("username"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func handleGetRoom(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		room, err := svc.GetRoom(c.Request.Context(), auth.FromContext(c), roomID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func handleListMessages(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		msgs, err := svc.ListMessages(c.Request.Context(), auth.FromContext(c), roomID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

func handlePostMessage(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		var req postMessageRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		res, err := svc.PostMessage(c.Request.Context(), auth.FromContext(c), roomID, chat.PostMessageInput{
			Text:          req.Text,
			MessageType:   req.MessageType,
			TipAmount:     req.TipAmount,
			BidID:         req.Bid,
			AttachmentIDs: req.AttachmentIDs,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		if !res.Realtime {
			c.Header(degradedHeader, "true")
		}
		c.JSON(http.StatusCreated, res.Message)
	}
}

func handleMarkRead(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		messageID, err := idParam(c, "message_id")
		if err != nil {
			respondError(c, err)
			return
		}
		msg, err := svc.MarkRead(c.Request.Context(), auth.FromContext(c), roomID, messageID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, msg)
	}
}

func handleUpload(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			respondError(c, apperr.Field("file", "File required."))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()

		att, err := svc.UploadAttachment(c.Request.Context(), auth.FromContext(c), roomID, fh.Filename, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, att)
	}
}

func handleCreateBid(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		var req createBidRequest
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		bid, created, err := svc.CreateBid(c.Request.Context(), auth.FromContext(c), roomID, chat.BidInput{
			Amount:         req.Amount,
			Currency:       req.Currency,
			Tier:           req.Tier,
			Notes:          req.Notes,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, bid)
	}
}

func handleRespondToBid(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, err := idParam(c, "room_id")
		if err != nil {
			respondError(c, err)
			return
		}
		bidID, err := idParam(c, "bid_id")
		if err != nil {
			respondError(c, err)
			return
		}
		var body map[string]any
		if err := bindJSON(c, &body); err != nil {
			respondError(c, err)
			return
		}
		action, err := chat.ParseBidAction(body)
		if err != nil {
			respondError(c, err)
			return
		}
		bid, err := svc.RespondToBid(c.Request.Context(), auth.FromContext(c), roomID, bidID, action)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bid)
	}
}
