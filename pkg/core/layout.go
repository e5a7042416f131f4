package core

// Collection names a child collection of a project or owner object.
type Collection string

const (
	Actions   Collection = "actions"
	Entities  Collection = "entities"
	Modules   Collection = "modules"
	Templates Collection = "templates"
	Messages  Collection = "messages"
)

// Owner identifies the object a collection hangs off. The zero Owner is
// the project itself.
type Owner struct {
	Kind Collection // Actions or Entities
	ID   string
}

// Layout maps domain objects onto backend paths.
type Layout interface {
	// Projects is the path whose children are the project identifiers.
	Projects() string
	// ProjectAttributes is the document holding a project's attributes.
	ProjectAttributes(project string) string
	// ProjectRoots lists every path owned by the project that must be
	// removed, after its children, when the project is deleted.
	ProjectRoots(project string) []string
	// Collection is the path whose children are the members of c.
	Collection(project string, owner Owner, c Collection) string
	// Object is the subtree owned by an action or entity.
	Object(project string, kind Collection, id string) string
	// Attributes is the document holding an action's or entity's attributes.
	Attributes(project string, kind Collection, id string) string
}

// FileLayout nests everything under a directory per project:
//
//	<project>/project.yaml
//	<project>/actions/<action>/attributes.yaml
//	<project>/actions/<action>/messages/<id>.yaml
//	<project>/actions/<action>/modules/<module>.yaml
//	<project>/modules/<module>.yaml
//	<project>/templates/<template>.yaml
type FileLayout struct{}

// ProjectConfigName is the base name of the project attribute document.
// It must differ from the data root marker, which FindRoot stops at.
const ProjectConfigName = "project"

// ReservedProjectID is the base name of the data root marker document.
// A project with that identifier would live inside the marker.
const ReservedProjectID = "expipe"

func (FileLayout) Projects() string { return "" }

func (FileLayout) ProjectAttributes(project string) string {
	return Join(project, ProjectConfigName)
}

func (FileLayout) ProjectRoots(project string) []string {
	return []string{project}
}

func (l FileLayout) Collection(project string, owner Owner, c Collection) string {
	if owner.ID == "" {
		return Join(project, string(c))
	}
	return Join(l.Object(project, owner.Kind, owner.ID), string(c))
}

func (FileLayout) Object(project string, kind Collection, id string) string {
	return Join(project, string(kind), id)
}

func (l FileLayout) Attributes(project string, kind Collection, id string) string {
	return Join(l.Object(project, kind, id), "attributes")
}

// TreeLayout keeps every collection as a sibling at the root of a single
// document tree, keyed by project, for stores without directory nesting:
//
//	projects/<project>
//	actions/<project>/<action>
//	action_messages/<project>/<action>/<id>
//	action_modules/<project>/<action>/<module>
//	project_modules/<project>/<module>
//	templates/<project>/<template>
type TreeLayout struct{}

func (TreeLayout) Projects() string { return "projects" }

func (TreeLayout) ProjectAttributes(project string) string {
	return Join("projects", project)
}

func (TreeLayout) ProjectRoots(project string) []string {
	return []string{
		Join("actions", project),
		Join("action_messages", project),
		Join("action_modules", project),
		Join("entities", project),
		Join("entity_messages", project),
		Join("entity_modules", project),
		Join("project_modules", project),
		Join("templates", project),
		Join("projects", project),
	}
}

func (TreeLayout) Collection(project string, owner Owner, c Collection) string {
	if owner.ID == "" {
		switch c {
		case Modules:
			return Join("project_modules", project)
		default:
			return Join(string(c), project)
		}
	}
	return Join(singular(owner.Kind)+"_"+string(c), project, owner.ID)
}

func (TreeLayout) Object(project string, kind Collection, id string) string {
	return Join(string(kind), project, id)
}

func (l TreeLayout) Attributes(project string, kind Collection, id string) string {
	return l.Object(project, kind, id)
}

func singular(c Collection) string {
	switch c {
	case Actions:
		return "action"
	case Entities:
		return "entity"
	}
	return string(c)
}
