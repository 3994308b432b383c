package api

import (
	"net/http"

	"learnedge/apperr"
	"learnedge/db"
	"learnedge/models"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// CourseRequest is the editable part of a course. Ownership, enrollments and
// timestamps are always set by the server.
type CourseRequest struct {
	Title           string             `json:"title"`
	Category        string             `json:"category"`
	Level           string             `json:"level"`
	PrimaryLanguage string             `json:"primary_language"`
	Subtitle        string             `json:"subtitle"`
	Description     string             `json:"description"`
	WelcomeMessage  string             `json:"welcome_message"`
	Pricing         float64            `json:"pricing"`
	Objectives      []string           `json:"objectives"`
	Image           models.CourseImage `json:"image"`
	Curriculum      []models.Section   `json:"curriculum"`
	IsPublished     bool               `json:"is_published"`
}

func (r CourseRequest) toCourse() models.Course {
	return models.Course{
		Title:           r.Title,
		Category:        r.Category,
		Level:           r.Level,
		PrimaryLanguage: r.PrimaryLanguage,
		Subtitle:        r.Subtitle,
		Description:     r.Description,
		WelcomeMessage:  r.WelcomeMessage,
		Pricing:         r.Pricing,
		Objectives:      r.Objectives,
		Image:           r.Image,
		Curriculum:      r.Curriculum,
		IsPublished:     r.IsPublished,
	}
}

// ownedCourse loads a course and checks that the caller is its instructor.
func ownedCourse(c *gin.Context, store db.Store, identity models.Identity) (models.Course, bool) {
	course, err := store.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return models.Course{}, false
	}
	if course.InstructorID != identity.UserID {
		utils.RespondError(c, apperr.Forbidden("you are not the instructor of this course"))
		return models.Course{}, false
	}
	return course, true
}

// --- Add Course ---

// AddCourseHandler creates a course owned by the caller.
// @Summary      Create a Course
// @Description  Creates a course owned by the calling instructor.
// @Description
// @Description  Section and lecture ids are assigned by the server; ids sent by the client are ignored.
// @Description  Every section needs at least one lecture, `level` is one of `beginner`, `intermediate` or `advanced`,
// @Description  and lecture durations are written `M:SS` or `H:MM:SS`.
// @Tags         Instructor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        course body CourseRequest true "The course to create."
// @Success      201  {object}  utils.Envelope{data=models.Course} "Course created."
// @Failure      400  {object}  utils.Envelope "Bad Request: the course failed validation."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the caller is not an instructor."
// @Failure      500  {object}  utils.Envelope "Internal Server Error."
// @Router       /instructor/course/add [post]
func AddCourseHandler(c *gin.Context, store db.Store) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}

	var req CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	course := req.toCourse()
	models.AssignCurriculumIDs(course.Curriculum, nil, utils.GenerateDashlessUUID)
	if err := models.ValidateCourse(&course); err != nil {
		utils.RespondError(c, err)
		return
	}
	course.InstructorID = identity.UserID
	course.InstructorName = identity.UserName

	created, err := store.CreateCourse(c.Request.Context(), course)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusCreated, "course created", created)
}

// --- List Instructor Courses ---

// ListInstructorCoursesHandler lists the caller's courses, published or not.
// @Summary      List Your Courses
// @Description  Returns every course owned by the calling instructor, oldest first, including unpublished drafts.
// @Tags         Instructor
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  utils.Envelope{data=[]models.Course} "The instructor's courses."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the caller is not an instructor."
// @Router       /instructor/course/get [get]
func ListInstructorCoursesHandler(c *gin.Context, store db.Store) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	courses, err := store.ListCoursesByInstructor(c.Request.Context(), identity.UserID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "", courses)
}

// --- Get Instructor Course ---

// GetInstructorCourseHandler returns one of the caller's courses.
// @Summary      Get One of Your Courses
// @Description  Returns the full course including its enrolled students.
// @Tags         Instructor
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Course ID"
// @Success      200  {object}  utils.Envelope{data=models.Course} "The course."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the caller does not own this course."
// @Failure      404  {object}  utils.Envelope "Not Found."
// @Router       /instructor/course/get/details/{id} [get]
func GetInstructorCourseHandler(c *gin.Context, store db.Store) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	course, ok := ownedCourse(c, store, identity)
	if !ok {
		return
	}
	utils.RespondOK(c, http.StatusOK, "", course)
}

// --- Update Course ---

// UpdateCourseHandler replaces the editable fields of a course.
// @Summary      Update a Course
// @Description  Replaces the whole editable document of a course. Enrolled students, ownership and the creation time are kept.
// @Description  Sections and lectures that keep their existing ids keep them; new entries get fresh ids.
// @Description  Concurrent updates are last-write-wins.
// @Tags         Instructor
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path  string         true  "Course ID"
// @Param        course body  CourseRequest  true  "The replacement course document."
// @Success      200  {object}  utils.Envelope{data=models.Course} "Course updated."
// @Failure      400  {object}  utils.Envelope "Bad Request: the course failed validation."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the caller does not own this course."
// @Failure      404  {object}  utils.Envelope "Not Found."
// @Router       /instructor/course/update/{id} [put]
func UpdateCourseHandler(c *gin.Context, store db.Store) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	existing, ok := ownedCourse(c, store, identity)
	if !ok {
		return
	}

	var req CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	course := req.toCourse()
	models.AssignCurriculumIDs(course.Curriculum, existing.Curriculum, utils.GenerateDashlessUUID)
	if err := models.ValidateCourse(&course); err != nil {
		utils.RespondError(c, err)
		return
	}

	updated, err := store.ReplaceCourse(c.Request.Context(), existing.ID, course)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "course updated", updated)
}

// --- Delete Course ---

// DeleteCourseHandler removes a course.
// @Summary      Delete a Course
// @Description  Deletes the course. Orders and purchases that reference it are kept.
// @Tags         Instructor
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Course ID"
// @Success      200  {object}  utils.Envelope "Course deleted."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: the caller does not own this course."
// @Failure      404  {object}  utils.Envelope "Not Found."
// @Router       /instructor/course/delete/{id} [delete]
func DeleteCourseHandler(c *gin.Context, store db.Store) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return
	}
	course, ok := ownedCourse(c, store, identity)
	if !ok {
		return
	}
	if err := store.DeleteCourse(c.Request.Context(), course.ID); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "course deleted", nil)
}
