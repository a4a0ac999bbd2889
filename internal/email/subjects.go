package email

const (
	subjectAppointmentVerification = "Confirma tu visita"
)
