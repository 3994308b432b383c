package api

import (
	"net/http"
	"strconv"
	"strings"

	"learnedge/apperr"
	"learnedge/cache"
	"learnedge/db"
	"learnedge/models"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// splitList turns "a, b,,c" into [a b c].
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		utils.RespondBadRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// sameUser answers 403 unless the path parameter names the caller.
func sameUser(c *gin.Context, param string) (string, bool) {
	identity, ok := utils.MustIdentity(c)
	if !ok {
		return "", false
	}
	if c.Param(param) != identity.UserID {
		utils.RespondError(c, apperr.Forbidden("you can only access your own purchases"))
		return "", false
	}
	return identity.UserID, true
}

// --- Catalog ---

// ListCatalogHandler lists published courses.
// @Summary      Browse the Course Catalog
// @Description  Lists published courses. No authentication is needed.
// @Description
// @Description  *   `category`, `level`, `primaryLanguage`: comma-separated lists. A course matches a key when it matches any listed value; all given keys must match.
// @Description  *   `sortBy`: `price-lowtohigh` (default), `price-hightolow`, `title-atoz` or `title-ztoa`.
// @Description  *   `content_query`: conditions over the course JSON, written `path operator value`. Repeat the parameter to add conditions and put `and`/`or` between them.
// @Description      Operators: `equals`, `notequals`, `greaterthan`, `greaterthanorequals`, `lessthan`, `lessthanorequals`, `contains`, `startswith`, `endswith`. String operators accept an `-insensitive` suffix.
// @Description      Example: `?content_query=pricing lessthan 50&content_query=and&content_query=objectives contains-insensitive testing`
// @Description  *   `page`, `limit`: pagination (default limit 20, max 100). The total number of matches is sent in the `X-Total-Count` header.
// @Tags         Catalog
// @Produce      json
// @Param        category        query  string    false  "Comma-separated categories."
// @Param        level           query  string    false  "Comma-separated levels." example(beginner,intermediate)
// @Param        primaryLanguage query  string    false  "Comma-separated languages."
// @Param        sortBy          query  string    false  "Sort order." Enums(price-lowtohigh, price-hightolow, title-atoz, title-ztoa) default(price-lowtohigh)
// @Param        content_query   query  []string  false  "Content conditions and logic operators." collectionFormat(multi)
// @Param        page            query  int       false  "Page number, starting at 1." minimum(1) default(1)
// @Param        limit           query  int       false  "Courses per page." minimum(1) maximum(100) default(20)
// @Success      200  {object}  utils.Envelope{data=[]models.CourseView} "Matching courses."
// @Failure      400  {object}  utils.Envelope "Bad Request: an invalid sortBy, content_query, page or limit."
// @Router       /student/course/get [get]
func ListCatalogHandler(c *gin.Context, store db.Store) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	courses, err := store.ListCourses(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	result, err := db.QueryCourses(courses, db.CourseQuery{
		Categories:    splitList(c.Query("category")),
		Levels:        splitList(c.Query("level")),
		Languages:     splitList(c.Query("primaryLanguage")),
		SortBy:        c.Query("sortBy"),
		ContentQuery:  c.QueryArray("content_query"),
		PublishedOnly: true,
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	views := make([]models.CourseView, 0, len(result.Courses))
	for _, course := range result.Courses {
		views = append(views, course.View())
	}
	c.Header("X-Total-Count", strconv.Itoa(result.Total))
	utils.RespondOK(c, http.StatusOK, "", views)
}

// GetCatalogCourseHandler returns one published course.
// @Summary      Get Course Details
// @Description  Returns a published course. Unpublished courses are reported as not found.
// @Tags         Catalog
// @Produce      json
// @Param        id   path      string  true  "Course ID"
// @Success      200  {object}  utils.Envelope{data=models.CourseView} "The course."
// @Failure      404  {object}  utils.Envelope "Not Found."
// @Router       /student/course/get/details/{id} [get]
func GetCatalogCourseHandler(c *gin.Context, store db.Store) {
	course, err := store.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if !course.IsPublished {
		utils.RespondError(c, apperr.NotFound("course not found"))
		return
	}
	utils.RespondOK(c, http.StatusOK, "", course.View())
}

// --- Entitlements ---

// PurchaseInfoHandler reports whether the caller owns a course.
// @Summary      Check Course Ownership
// @Description  `data` is `true` when the student has bought the course. `studentId` must be the caller.
// @Tags         Student
// @Produce      json
// @Security     BearerAuth
// @Param        courseId   path  string  true  "Course ID"
// @Param        studentId  path  string  true  "Student ID (must be the caller)"
// @Success      200  {object}  utils.Envelope{data=bool} "Ownership flag."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: studentId is not the caller."
// @Router       /student/course/purchase-info/{courseId}/{studentId} [get]
func PurchaseInfoHandler(c *gin.Context, entitlements cache.Entitlements) {
	studentID, ok := sameUser(c, "studentId")
	if !ok {
		return
	}
	owns, err := entitlements.Owns(c.Request.Context(), studentID, c.Param("courseId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "", owns)
}

// CoursesBoughtHandler lists the caller's purchased courses.
// @Summary      List Purchased Courses
// @Description  Returns the courses the student has bought, in purchase order. The list is empty when there are none.
// @Tags         Student
// @Produce      json
// @Security     BearerAuth
// @Param        studentId  path  string  true  "Student ID (must be the caller)"
// @Success      200  {object}  utils.Envelope{data=[]models.PurchasedCourse} "Purchased courses."
// @Failure      401  {object}  utils.Envelope "Unauthorized."
// @Failure      403  {object}  utils.Envelope "Forbidden: studentId is not the caller."
// @Router       /student/courses-bought/get/{studentId} [get]
func CoursesBoughtHandler(c *gin.Context, store db.Store) {
	studentID, ok := sameUser(c, "studentId")
	if !ok {
		return
	}
	record, err := store.GetStudentCourses(c.Request.Context(), studentID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, http.StatusOK, "", record.Courses)
}
