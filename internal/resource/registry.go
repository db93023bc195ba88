package resource

import (
	"fmt"
	"sort"

	"github.com/iancoleman/strcase"
)

// Имена ресурсов admin-панели.
const (
	Users             = "users"
	Kindergartens     = "kindergartens"
	Inquiries         = "inquiries"
	Community         = "community"
	Comments          = "comments"
	WorkReviews       = "work-reviews"
	InternshipReviews = "internship-reviews"
	Notices           = "notices"
	Reports           = "reports"
	Favorites         = "favorites"
	Notifications     = "notifications"
)

// Registry — таблица ресурсов по имени.
// Имена приводятся к kebab-case, поэтому internshipReviews,
// internship_reviews и internship-reviews — один ресурс.
type Registry struct {
	byName map[string]*Descriptor
}

// NewRegistry создаёт реестр из описаний ресурсов.
// Повторное имя или псевдоним — ошибка конфигурации.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" || d.BasePath == "" {
			return nil, fmt.Errorf("ресурс без имени или базового пути: %+v", d)
		}
		if d.IDField == "" {
			d.IDField = "id"
		}
		keys := append([]string{d.Name}, d.Aliases...)
		for _, key := range keys {
			key = strcase.ToKebab(key)
			if _, dup := r.byName[key]; dup {
				return nil, fmt.Errorf("ресурс %q зарегистрирован дважды", key)
			}
			r.byName[key] = d
		}
	}
	return r, nil
}

// Lookup возвращает описание ресурса. Для незнакомого имени строится
// описание по умолчанию: /{name}, поле идентификатора id.
func (r *Registry) Lookup(name string) *Descriptor {
	key := strcase.ToKebab(name)
	if d, ok := r.byName[key]; ok {
		return d
	}
	return &Descriptor{Name: key, BasePath: "/" + key, IDField: "id"}
}

// Known — ресурс зарегистрирован явно (по имени или псевдониму).
func (r *Registry) Known(name string) bool {
	_, ok := r.byName[strcase.ToKebab(name)]
	return ok
}

// ResolvePath — путь списка ресурса для заданных фильтров.
func (r *Registry) ResolvePath(name string, filter map[string]any) string {
	return r.Lookup(name).ListPathFor(filter)
}

// Names возвращает отсортированные канонические имена ресурсов.
func (r *Registry) Names() []string {
	seen := map[string]bool{}
	names := make([]string, 0, len(r.byName))
	for _, d := range r.byName {
		if !seen[d.Name] {
			seen[d.Name] = true
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Default возвращает реестр ресурсов backend 원바원.
func Default() *Registry {
	r, err := NewRegistry(defaultDescriptors()...)
	if err != nil {
		panic(err)
	}
	return r
}

func defaultDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			Name:          Users,
			BasePath:      "/admin/users",
			IDField:       "userId",
			SearchPath:    "/admin/users/search",
			SearchFilters: []string{"email", "nickname", "role", "provider", "status"},
			DetailPath:    func(id string) string { return "/admin/users/" + id },
		},
		{
			Name:       Kindergartens,
			BasePath:   "/kindergarten",
			IDField:    "kindergartenId",
			DetailPath: func(id string) string { return "/kindergarten/" + id },
		},
		{
			Name:           Inquiries,
			BasePath:       "/inquiry",
			ListPath:       "/inquiry/all",
			IDField:        "inquiryId",
			StatusParam:    "status",
			StatusListPath: func(status string) string { return "/inquiry/status/" + pathSegment(status) },
			DetailPath:     func(id string) string { return "/inquiry/" + id },
			Update:         UpdateInquiryAction,
		},
		{
			Name:       Community,
			Aliases:    []string{"posts"},
			BasePath:   "/community",
			IDField:    "postId",
			DetailPath: func(id string) string { return "/community/" + id },
			DeletePath: func(id string) string { return "/admin/community/" + id },
		},
		{
			Name:     Comments,
			BasePath: "/comment",
			IDField:  "commentId",
			Parent: &ParentRule{
				Param:    "postId",
				ListPath: func(postID int64) string { return fmt.Sprintf("/community/%d/comment/all", postID) },
			},
		},
		{
			Name:     WorkReviews,
			Aliases:  []string{"reviews"},
			BasePath: "/work/review",
			IDField:  "workReviewId",
			Parent: &ParentRule{
				Param:    "kindergartenId",
				ListPath: func(kid int64) string { return fmt.Sprintf("/work/reviews/%d", kid) },
			},
			NoSort: true,
		},
		{
			Name:     InternshipReviews,
			BasePath: "/internship/review",
			IDField:  "internshipReviewId",
			Parent: &ParentRule{
				Param:    "kindergartenId",
				ListPath: func(kid int64) string { return fmt.Sprintf("/internship/reviews/%d", kid) },
			},
			NoSort: true,
		},
		{
			Name:     Notices,
			BasePath: "/admin/notice",
			IDField:  "noticeId",
			NoDetail: true,
			Update:   UpdateNoticeVisibility,
		},
		{
			Name:       Reports,
			BasePath:   "/admin/report",
			IDField:    "reportId",
			DetailPath: func(id string) string { return "/admin/report/" + id },
			Update:     UpdateReportStatus,
			PreserveID: true,
		},
		{
			Name:     Favorites,
			BasePath: "/favorite-kindergartens",
			IDField:  "favoriteId",
			NoDetail: true,
			Virtual:  true,
		},
		{
			Name:     Notifications,
			BasePath: "/notification/my",
			IDField:  "notificationId",
			NoDetail: true,
			Virtual:  true,
		},
	}
}
