package refcache

// Record types. Most domains are plain id/name lookups; the rest carry the few
// extra columns page code needs.

type Lookup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ZipCode struct {
	Zip   string `json:"zip"`
	City  string `json:"city"`
	State string `json:"state"`
}

type Template struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

type User struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	RoleID int    `json:"roleId,omitempty"`
}

type StatusCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

type Company struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

type CompanyContact struct {
	ID        int    `json:"id"`
	CompanyID int    `json:"companyId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

type CommissionConfigurator struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

type VariableCommission struct {
	ID   int     `json:"id"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Rate float64 `json:"rate"`
}

type WorkflowStep struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type Preference struct {
	UserID int    `json:"userId"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

var (
	States                  = NewDomain[KeyValue]("States")
	Eligibility             = NewDomain[Lookup]("Eligibility")
	JobOptions              = NewDomain[Lookup]("JobOptions")
	TaxTerms                = NewDomain[Lookup]("TaxTerms")
	Skills                  = NewDomain[Lookup]("Skills")
	Experience              = NewDomain[Lookup]("Experience")
	Templates               = NewDomain[Template]("Templates")
	Users                   = NewDomain[User]("Users")
	StatusCodes             = NewDomain[StatusCode]("StatusCodes")
	Zips                    = NewDomain[ZipCode]("Zips")
	Education               = NewDomain[Lookup]("Education")
	Companies               = NewDomain[Company]("Companies")
	CompanyContacts         = NewDomain[CompanyContact]("CompanyContacts")
	Roles                   = NewDomain[Lookup]("Roles")
	Titles                  = NewDomain[Lookup]("Titles")
	LeadSources             = NewDomain[Lookup]("LeadSources")
	LeadIndustries          = NewDomain[Lookup]("LeadIndustries")
	LeadStatus              = NewDomain[Lookup]("LeadStatus")
	CommissionConfigurators = NewDomain[CommissionConfigurator]("CommissionConfigurators")
	VariableCommissions     = NewDomain[VariableCommission]("VariableCommissions")
	Workflow                = NewDomain[WorkflowStep]("Workflow")
	DocumentTypes           = NewDomain[Lookup]("DocumentTypes")
	Preferences             = NewDomain[Preference]("Preferences")
	Communication           = NewDomain[KeyValue]("Communication")
)
