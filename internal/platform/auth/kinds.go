package auth

// Resource kinds guarded by the services.
const (
	KindPatient        = "patient"
	KindDoctor         = "doctor"
	KindAppointment    = "appointment"
	KindMedicalRecord  = "medical-record"
	KindPatientHistory = "patient-history"
)

// PatientPolicy: patients manage their own profile, doctors may read any
// patient but never write one.
func PatientPolicy(patients OwnerResolver) KindPolicy {
	return KindPolicy{
		Kind: KindPatient,
		Grants: map[Role][]Grant{
			RolePatient: {{Ops: []Operation{OpCreate, OpRead, OpUpdate}, Side: SidePatient, Mismatch: "Access Denied: You can only access your own profile."}},
			RoleDoctor:  {{Ops: []Operation{OpRead}}},
		},
		Resolvers: map[Side]OwnerResolver{SidePatient: patients},
	}
}

// DoctorPolicy: doctors manage their own profile only.
func DoctorPolicy(doctors OwnerResolver) KindPolicy {
	return KindPolicy{
		Kind: KindDoctor,
		Grants: map[Role][]Grant{
			RoleDoctor: {{Ops: []Operation{OpCreate, OpRead, OpUpdate}, Side: SideDoctor, Mismatch: "Access Denied: You can only modify your own profile."}},
		},
		Resolvers: map[Side]OwnerResolver{SideDoctor: doctors},
	}
}

// AppointmentPolicy: an appointment has a patient side and a doctor side;
// each role may only act through its own side.
func AppointmentPolicy(patients, doctors OwnerResolver) KindPolicy {
	return KindPolicy{
		Kind: KindAppointment,
		Grants: map[Role][]Grant{
			RolePatient: {{Ops: []Operation{OpCreate, OpRead, OpUpdate}, Side: SidePatient, Mismatch: "Access Denied: This is not your appointment."}},
			RoleDoctor:  {{Ops: []Operation{OpRead, OpUpdate}, Side: SideDoctor, Mismatch: "Access Denied: You are not assigned to this appointment."}},
		},
		Resolvers: map[Side]OwnerResolver{SidePatient: patients, SideDoctor: doctors},
	}
}

// MedicalRecordPolicy: the authoring doctor writes, the patient reads.
func MedicalRecordPolicy(patients, doctors OwnerResolver) KindPolicy {
	return KindPolicy{
		Kind: KindMedicalRecord,
		Grants: map[Role][]Grant{
			RolePatient: {{Ops: []Operation{OpRead}, Side: SidePatient, Mismatch: "Access Denied: Not your record."}},
			RoleDoctor:  {{Ops: []Operation{OpCreate, OpRead, OpUpdate}, Side: SideDoctor, Mismatch: "Access Denied: You did not create this record."}},
		},
		Resolvers: map[Side]OwnerResolver{SidePatient: patients, SideDoctor: doctors},
	}
}

// PatientHistoryPolicy covers the per-patient record history: the patient
// reads their own, any doctor may read it.
func PatientHistoryPolicy(patients OwnerResolver) KindPolicy {
	return KindPolicy{
		Kind: KindPatientHistory,
		Grants: map[Role][]Grant{
			RolePatient: {{Ops: []Operation{OpRead}, Side: SidePatient, Mismatch: "Access Denied: You can only view your own history."}},
			RoleDoctor:  {{Ops: []Operation{OpRead}}},
		},
		Resolvers: map[Side]OwnerResolver{SidePatient: patients},
	}
}
