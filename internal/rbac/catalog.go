package rbac

// catalog guarda as permissões padrão por papel, usadas apenas quando o
// serviço de permissões está indisponível. Não deve ser alterado em runtime.
var catalog = map[Role][]string{
	RoleMaster: {
		CityHallRead, CityHallCreate, CityHallUpdate, CityHallDelete,
		HealthUnitRead, HealthUnitCreate, HealthUnitUpdate, HealthUnitDelete,
		DoctorRead, DoctorCreate, DoctorUpdate, DoctorDelete,
		PatientRead, PatientCreate, PatientUpdate, PatientDelete,
		UserRead, UserCreate, UserUpdate, UserDelete,
		MedicalRecordRead,
		RBACManage,
	},
	RoleAdmin: {
		CityHallRead,
		HealthUnitRead, HealthUnitCreate, HealthUnitUpdate, HealthUnitDelete,
		DoctorRead, DoctorCreate, DoctorUpdate, DoctorDelete,
		PatientRead, PatientCreate, PatientUpdate,
		UserRead, UserCreate, UserUpdate,
		MedicalRecordRead,
	},
	RoleDoctor: {
		HealthUnitRead,
		DoctorRead,
		PatientRead, PatientCreate, PatientUpdate,
		MedicalRecordRead, MedicalRecordCreate, MedicalRecordUpdate,
	},
	RolePatient: {
		PatientRead,
		MedicalRecordRead,
	},
}

// Defaults devolve a lista padrão do papel, em ordem. Papel desconhecido
// recebe lista vazia.
func Defaults(role Role) []string {
	perms, ok := catalog[role]
	if !ok {
		return []string{}
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// DefaultSet devolve o catálogo do papel como Set.
func DefaultSet(role Role) Set {
	return NewSet(catalog[role]...)
}
