package dto

// SeedCourse describes the course created by a roster seed.
type SeedCourse struct {
	Code      string  `json:"code"`
	Title     string  `json:"title"`
	Credit    float64 `json:"credit"`
	Weeks     int     `json:"weeks"`
	FinalWeek int     `json:"final_week"`
	TeacherID uint    `json:"teacher_id"`
}

// SeedStudent describes one enrolled student of a roster seed.
type SeedStudent struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	StudentNumber string `json:"student_number"`
}

// SeedRosterRequest is the roster seeding payload.
type SeedRosterRequest struct {
	Course   SeedCourse    `json:"course"`
	Students []SeedStudent `json:"students"`
}

// SeedRosterResponse reports what a roster seed created.
type SeedRosterResponse struct {
	CourseID      uint            `json:"course_id"`
	Students      int             `json:"students"`
	EnrollmentIDs map[string]uint `json:"enrollment_ids"`
}
