package api

import (
	"net/http"

	"learnedge/progress"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// MarkViewedRequest defines the expected body for marking a lecture viewed.
type MarkViewedRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	CourseID  string `json:"course_id" binding:"required"`
	LectureID string `json:"lecture_id" binding:"required"`
}

// ResetProgressRequest defines the expected body for resetting progress.
type ResetProgressRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	CourseID string `json:"course_id" binding:"required"`
}

// GetProgressHandler returns the caller's progress through a course.
// @Summary      Get Course Progress
// @Description  Returns the lectures viewed and the completion state. For a course the caller has not bought the answer is `{"is_purchased": false}`.
// @Tags         Progress
// @Produce      json
// @Security     BearerAuth
// @Param        userId    path  string  true  "User ID (must be the caller)"
// @Param        courseId  path  string  true  "Course ID"
// @Success      200  {object}  utils.Envelope{data=progress.Report} "Progress report."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: userId is not the caller."
// @Failure      404  {object}  utils.Envelope "Not Found: no such course."
// @Router       /student/course-progress/get/{userId}/{courseId} [get]
func GetProgressHandler(c *gin.Context, tracker *progress.Service) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	report, err := tracker.Get(c.Request.Context(), identity, c.Param("userId"), c.Param("courseId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "", report)
}

// MarkLectureViewedHandler records a lecture view.
// @Summary      Mark a Lecture Viewed
// @Description  Records that the caller viewed a lecture of a course they own. Repeating the call changes nothing.
// @Tags         Progress
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        view body MarkViewedRequest true "The viewed lecture."
// @Success      200  {object}  utils.Envelope{data=progress.Report} "Updated progress report."
// @Failure      400  {object}  utils.Envelope "Bad Request: a field is missing."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: user_id is not the caller, or the course is not owned."
// @Failure      404  {object}  utils.Envelope "Not Found: no such course or lecture."
// @Router       /student/course-progress/mark-lecture-viewed [post]
func MarkLectureViewedHandler(c *gin.Context, tracker *progress.Service) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	var req MarkViewedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	report, err := tracker.MarkViewed(c.Request.Context(), identity, req.UserID, req.CourseID, req.LectureID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "lecture marked as viewed", report)
}

// ResetProgressHandler deletes the caller's progress through a course.
// @Summary      Reset Course Progress
// @Description  Deletes every lecture view of the caller for the course so it can be taken again.
// @Tags         Progress
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        reset body ResetProgressRequest true "The course to reset."
// @Success      200  {object}  utils.Envelope{data=progress.Report} "Empty progress report."
// @Failure      400  {object}  utils.Envelope "Bad Request: a field is missing."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: user_id is not the caller, or the course is not owned."
// @Failure      404  {object}  utils.Envelope "Not Found: no such course."
// @Router       /student/course-progress/reset-progress [post]
func ResetProgressHandler(c *gin.Context, tracker *progress.Service) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	var req ResetProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	report, err := tracker.Reset(c.Request.Context(), identity, req.UserID, req.CourseID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "progress reset", report)
}
